package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/webagent/webagent/internal/ingest"
)

// VectorStore implements ingest.VectorStore on the scrape_embeddings table
// using the pgvector extension. Row IDs are generated by the database.
type VectorStore struct {
	pool pool
}

// NewVectorStore constructs a VectorStore on an existing pool.
func NewVectorStore(p pool) (*VectorStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &VectorStore{pool: p}, nil
}

// InsertEmbeddings writes all records in a single multi-row statement.
func (s *VectorStore) InsertEmbeddings(ctx context.Context, records []ingest.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	var (
		placeholders []string
		args         []any
	)
	for _, rec := range records {
		base := len(args)
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, rec.JobID, rec.PageID, rec.Content, pgvector.NewVector(rec.Vector))
	}
	query := `INSERT INTO scrape_embeddings (scrape_id, page_id, content, embedding) VALUES ` +
		strings.Join(placeholders, ",")
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert embeddings: %w", err)
	}
	return nil
}

// Search returns the chunks most similar to vector within a job, ordered by
// descending cosine similarity. Rows below threshold are excluded.
func (s *VectorStore) Search(
	ctx context.Context,
	jobID string,
	vector []float32,
	limit int,
	threshold float32,
) ([]ingest.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `
		SELECT id, content, 1 - (embedding <=> $1) AS similarity
		FROM scrape_embeddings
		WHERE scrape_id = $2 AND 1 - (embedding <=> $1) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`
	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), jobID, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var results []ingest.SearchResult
	for rows.Next() {
		var res ingest.SearchResult
		if err := rows.Scan(&res.ID, &res.Content, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}
