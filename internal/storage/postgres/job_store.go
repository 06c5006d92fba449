// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/webagent/webagent/internal/ingest"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the slice of pgxpool.Pool the stores use. pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Connect builds a pgx connection pool from cfg. The pool is shared by the
// job and vector stores.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return p, nil
}

// JobStore implements ingest.JobStore against the scrapes and scraped_pages
// tables.
type JobStore struct {
	pool pool
}

// NewJobStore constructs a JobStore on an existing pool.
func NewJobStore(p pool) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const jobColumns = `id, url, mode, page_limit, pages_scraped, status, current_step, error_message, metadata, created_at, updated_at`

// CreateJob inserts a new scrape job row.
func (s *JobStore) CreateJob(ctx context.Context, job ingest.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	metadata, err := marshalMetadata(job.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO scrapes (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.URL,
		job.Mode,
		job.PageLimit,
		job.PagesScraped,
		job.Status,
		job.Step,
		job.ErrorMessage,
		metadata,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scrape: %w", err)
	}
	return nil
}

// GetJob fetches one job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (ingest.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrapes WHERE id = $1`
	return s.scanJob(s.pool.QueryRow(ctx, query, jobID))
}

// FindJobByURL returns the most recent job for a URL.
func (s *JobStore) FindJobByURL(ctx context.Context, url string) (ingest.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrapes WHERE url = $1 ORDER BY created_at DESC LIMIT 1`
	return s.scanJob(s.pool.QueryRow(ctx, query, url))
}

// ListJobs returns all jobs, newest first.
func (s *JobStore) ListJobs(ctx context.Context) ([]ingest.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrapes ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scrapes: %w", err)
	}
	defer rows.Close()

	var jobs []ingest.Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrapes: %w", err)
	}
	return jobs, nil
}

// UpdateJob applies the non-nil fields of update to a job. A fully empty
// update is a no-op.
func (s *JobStore) UpdateJob(ctx context.Context, jobID string, update ingest.JobUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Status != nil {
		add("status", *update.Status)
	}
	if update.Step != nil {
		add("current_step", *update.Step)
	}
	if update.PagesScraped != nil {
		add("pages_scraped", *update.PagesScraped)
	}
	if update.ErrorMessage != nil {
		add("error_message", *update.ErrorMessage)
	}
	if update.Metadata != nil {
		metadata, err := marshalMetadata(update.Metadata)
		if err != nil {
			return err
		}
		add("metadata", metadata)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, jobID)

	query := fmt.Sprintf("UPDATE scrapes SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update scrape: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

// DeleteJob removes a job. Pages and embeddings are removed by ON DELETE
// CASCADE on their foreign keys.
func (s *JobStore) DeleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM scrapes WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete scrape: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}

const pageColumns = `id, scrape_id, url, title, content, markdown, metadata, created_at, updated_at`

// InsertPages writes pages in a single multi-row statement.
func (s *JobStore) InsertPages(ctx context.Context, pages []ingest.Page) error {
	if len(pages) == 0 {
		return nil
	}
	var (
		placeholders []string
		args         []any
	)
	for _, page := range pages {
		metadata, err := marshalMetadata(page.Metadata)
		if err != nil {
			return err
		}
		base := len(args)
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			page.ID,
			page.JobID,
			page.URL,
			page.Title,
			page.Content,
			page.Markdown,
			metadata,
			page.CreatedAt,
			page.UpdatedAt,
		)
	}
	query := `INSERT INTO scraped_pages (` + pageColumns + `) VALUES ` + strings.Join(placeholders, ",")
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert pages: %w", err)
	}
	return nil
}

// ListPages returns a job's pages in insertion order.
func (s *JobStore) ListPages(ctx context.Context, jobID string) ([]ingest.Page, error) {
	query := `SELECT ` + pageColumns + ` FROM scraped_pages WHERE scrape_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []ingest.Page
	for rows.Next() {
		var (
			page     ingest.Page
			metadata []byte
		)
		err := rows.Scan(
			&page.ID,
			&page.JobID,
			&page.URL,
			&page.Title,
			&page.Content,
			&page.Markdown,
			&metadata,
			&page.CreatedAt,
			&page.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		if page.Metadata, err = unmarshalMetadata(metadata); err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}

// CountPages returns the number of stored pages for a job.
func (s *JobStore) CountPages(ctx context.Context, jobID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scraped_pages WHERE scrape_id = $1`, jobID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// DeletePages removes the given pages from a job.
func (s *JobStore) DeletePages(ctx context.Context, jobID string, pageIDs []string) error {
	if len(pageIDs) == 0 {
		return nil
	}
	query := `DELETE FROM scraped_pages WHERE scrape_id = $1 AND id = ANY($2)`
	if _, err := s.pool.Exec(ctx, query, jobID, pageIDs); err != nil {
		return fmt.Errorf("delete pages: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *JobStore) scanJob(row rowScanner) (ingest.Job, error) {
	var (
		job      ingest.Job
		metadata []byte
	)
	err := row.Scan(
		&job.ID,
		&job.URL,
		&job.Mode,
		&job.PageLimit,
		&job.PagesScraped,
		&job.Status,
		&job.Step,
		&job.ErrorMessage,
		&metadata,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Job{}, ingest.ErrNotFound
		}
		return ingest.Job{}, fmt.Errorf("scan scrape row: %w", err)
	}
	if job.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return ingest.Job{}, err
	}
	return job, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}
