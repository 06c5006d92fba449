// Package ingest defines core types shared across the ingestion subsystems.
package ingest

import "time"

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

// Job status values persisted in the job store. Transitions are monotonic
// within one run: pending -> processing -> completed|failed. "completed" is
// terminal except for explicit refresh operations.
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStep is the sub-state displayed while a job is in flight.
type JobStep string

// Job step values.
const (
	StepAnalyzing            JobStep = "analyzing"
	StepCrawling             JobStep = "crawling"
	StepProcessingPages      JobStep = "processing_pages"
	StepGeneratingEmbeddings JobStep = "generating_embeddings"
	StepCompleted            JobStep = "completed"
)

// CrawlMode selects between a single-page scrape and a multi-page crawl.
type CrawlMode string

// Crawl modes.
const (
	CrawlModeSingle CrawlMode = "single"
	CrawlModeFull   CrawlMode = "full"
)

// Metadata keys written into Job.Metadata by the event processor and the
// refresh path. Kept as raw strings in storage.
const (
	MetaCurrentURL      = "current_processing_url"
	MetaIsRefreshing    = "is_refreshing"
	MetaRefreshingPages = "refreshing_pages"
)

// Job is the metadata persisted for one user-initiated scrape run.
type Job struct {
	ID           string         `json:"id"`
	URL          string         `json:"url"`
	Mode         CrawlMode      `json:"crawl_mode"`
	PageLimit    int            `json:"page_limit,omitempty"`
	PagesScraped int            `json:"pages_scraped"`
	Status       JobStatus      `json:"status"`
	Step         JobStep        `json:"current_step,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// JobUpdate carries a partial update for a job row. Nil fields are left
// untouched; a non-nil Metadata replaces the stored metadata wholesale.
type JobUpdate struct {
	Status       *JobStatus
	Step         *JobStep
	PagesScraped *int
	ErrorMessage *string
	Metadata     map[string]any
}

// Page is one crawled document belonging to a job. Deleting a job (or a page)
// cascades to the derived embedding rows.
type Page struct {
	ID        string         `json:"id"`
	JobID     string         `json:"scrape_id"`
	URL       string         `json:"url"`
	Title     string         `json:"title,omitempty"`
	Content   string         `json:"content,omitempty"`
	Markdown  string         `json:"markdown,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Text returns the best available text for chunking: cleaned markdown when
// present, otherwise the raw content.
func (p Page) Text() string {
	if p.Markdown != "" {
		return p.Markdown
	}
	return p.Content
}

// Chunk is a bounded slice of a page's text. Chunks exist only during
// processing; they are never persisted as their own entity.
type Chunk struct {
	Content string
	PageID  string
}

// EmbeddingRecord is a persisted vector plus its source chunk text. PageID is
// empty for rows whose source page is unknown (legacy or orphaned chunks).
type EmbeddingRecord struct {
	JobID   string
	PageID  string
	Content string
	Vector  []float32
}

// SearchResult is one row returned by a vector similarity search.
type SearchResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// StatusUpdate builds a JobUpdate for the common status+step case.
func StatusUpdate(status JobStatus, step JobStep) JobUpdate {
	return JobUpdate{Status: &status, Step: &step}
}
