package ingest

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// JobStore persists job and page metadata.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	FindJobByURL(ctx context.Context, url string) (Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error
	DeleteJob(ctx context.Context, jobID string) error

	InsertPages(ctx context.Context, pages []Page) error
	ListPages(ctx context.Context, jobID string) ([]Page, error)
	CountPages(ctx context.Context, jobID string) (int, error)
	DeletePages(ctx context.Context, jobID string, pageIDs []string) error
}

// VectorStore persists embedding rows and answers similarity queries.
type VectorStore interface {
	InsertEmbeddings(ctx context.Context, records []EmbeddingRecord) error
	Search(ctx context.Context, jobID string, vector []float32, limit int, threshold float32) ([]SearchResult, error)
}

// EmbeddingProvider turns texts into vectors, one per input, in input order.
// Implementations perform a single remote call; retry policy lives above.
type EmbeddingProvider interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// CrawlClient drives the external crawling service. Progress comes back
// asynchronously through the webhook, not through these calls.
type CrawlClient interface {
	StartCrawl(ctx context.Context, url string, limit int, webhookURL string) (string, error)
	BatchScrape(ctx context.Context, urls []string, webhookURL string) (string, error)
	MapSite(ctx context.Context, url string, limit int) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job and page IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
