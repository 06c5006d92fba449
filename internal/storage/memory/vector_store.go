package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/webagent/webagent/internal/ingest"
)

// VectorStore is an in-memory ingest.VectorStore using brute-force cosine
// similarity. It exists for development and tests; production deployments use
// the pgvector-backed store.
type VectorStore struct {
	mu      sync.RWMutex
	nextID  int
	records map[string][]storedEmbedding
}

type storedEmbedding struct {
	id      string
	pageID  string
	content string
	vector  []float32
}

// NewVectorStore constructs a VectorStore.
func NewVectorStore() *VectorStore {
	return &VectorStore{records: make(map[string][]storedEmbedding)}
}

// InsertEmbeddings appends records to their jobs.
func (s *VectorStore) InsertEmbeddings(_ context.Context, records []ingest.EmbeddingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		s.nextID++
		s.records[rec.JobID] = append(s.records[rec.JobID], storedEmbedding{
			id:      fmt.Sprintf("emb-%d", s.nextID),
			pageID:  rec.PageID,
			content: rec.Content,
			vector:  append([]float32(nil), rec.Vector...),
		})
	}
	return nil
}

// Search scans a job's embeddings and returns the closest matches by cosine
// similarity, descending, excluding rows below threshold.
func (s *VectorStore) Search(
	_ context.Context,
	jobID string,
	vector []float32,
	limit int,
	threshold float32,
) ([]ingest.SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []ingest.SearchResult
	for _, rec := range s.records[jobID] {
		sim := cosineSimilarity(vector, rec.vector)
		if sim < threshold {
			continue
		}
		results = append(results, ingest.SearchResult{
			ID:         rec.id,
			Content:    rec.content,
			Similarity: sim,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of stored embeddings for a job.
func (s *VectorStore) Count(jobID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[jobID])
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
