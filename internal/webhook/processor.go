package webhook

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/embed"
	"github.com/webagent/webagent/internal/firecrawl"
	"github.com/webagent/webagent/internal/ingest"
	"github.com/webagent/webagent/internal/progress"
)

// ErrMissingJobID rejects events that carry no job identifier anywhere.
var ErrMissingJobID = errors.New("no scrape id provided")

// EmbeddingRunner is the slice of the orchestrator the processor needs.
type EmbeddingRunner interface {
	Process(ctx context.Context, jobID string, pages []ingest.Page, quiet bool) (embed.Result, error)
}

// HTMLConverter turns raw HTML into markdown for pages that arrive without a
// markdown rendering.
type HTMLConverter func(html string) (string, error)

// Processor is the imperative shell around PlanFor: it loads the job,
// computes the plan, and executes the plan's effects incrementally. Updates
// are not one atomic transaction, so partial progress survives a later
// failure within the same event.
type Processor struct {
	jobs     ingest.JobStore
	admin    ingest.JobStore // privileged store for the completion update; may be nil
	embedder EmbeddingRunner
	convert  HTMLConverter
	idGen    ingest.IDGenerator
	clock    ingest.Clock
	emitter  progress.Emitter
	logger   *zap.Logger
}

// NewProcessor constructs a Processor. admin may be nil, in which case the
// regular job store also handles completion updates.
func NewProcessor(
	jobs ingest.JobStore,
	admin ingest.JobStore,
	embedder EmbeddingRunner,
	convert HTMLConverter,
	idGen ingest.IDGenerator,
	clock ingest.Clock,
	emitter progress.Emitter,
	logger *zap.Logger,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		jobs:     jobs,
		admin:    admin,
		embedder: embedder,
		convert:  convert,
		idGen:    idGen,
		clock:    clock,
		emitter:  emitter,
		logger:   logger,
	}
}

// Outcome reports how an event was handled.
type Outcome struct {
	Skipped         bool
	PagesStored     int
	ChunksProcessed int
}

// Handle processes one normalized event. It returns ErrMissingJobID for
// unaddressable events and ingest.ErrNotFound for unknown jobs; any other
// error is an internal failure the HTTP layer maps to a 5xx so the crawler
// redelivers.
func (p *Processor) Handle(ctx context.Context, evt Event) (Outcome, error) {
	if evt.JobID == "" {
		return Outcome{}, ErrMissingJobID
	}
	ingest.WebhookEvents.WithLabelValues(string(evt.Kind)).Inc()

	if evt.Kind == KindFailed {
		return Outcome{}, p.markFailed(ctx, evt)
	}

	job, err := p.jobs.GetJob(ctx, evt.JobID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get job %s: %w", evt.JobID, err)
	}

	plan := PlanFor(job.Status, evt)
	if plan.Skip {
		p.logger.Debug("skipping event for completed job",
			zap.String("job_id", evt.JobID),
			zap.String("kind", string(evt.Kind)),
		)
		return Outcome{Skipped: true}, nil
	}

	if plan.MarkCrawling {
		update := ingest.StatusUpdate(ingest.JobStatusProcessing, ingest.StepCrawling)
		if err := p.jobs.UpdateJob(ctx, evt.JobID, update); err != nil {
			return Outcome{}, fmt.Errorf("mark crawling: %w", err)
		}
		p.emit(progress.Event{JobID: evt.JobID, Stage: progress.StageJobStart, URL: job.URL})
		return Outcome{}, nil
	}

	var out Outcome
	if plan.ProcessPages {
		stored, chunks, err := p.processPages(ctx, job, evt)
		if err != nil {
			return out, err
		}
		out.PagesStored = stored
		out.ChunksProcessed = chunks
	}
	if plan.Complete {
		if err := p.complete(ctx, job); err != nil {
			return out, err
		}
	}
	return out, nil
}

// markFailed sets the terminal failed status with the reported error text.
func (p *Processor) markFailed(ctx context.Context, evt Event) error {
	msg := evt.ErrorText
	if msg == "" {
		msg = "crawl failed"
	}
	status := ingest.JobStatusFailed
	update := ingest.JobUpdate{Status: &status, ErrorMessage: &msg}
	if err := p.jobs.UpdateJob(ctx, evt.JobID, update); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	p.logger.Warn("crawl failed",
		zap.String("job_id", evt.JobID),
		zap.String("error", msg),
	)
	p.emit(progress.Event{JobID: evt.JobID, Stage: progress.StageJobError, Note: msg})
	return nil
}

// processPages normalizes, persists and embeds the event's pages. For
// non-batch operations it also walks the job through processing_pages and
// generating_embeddings; batch (refresh) deliveries suppress that churn to
// avoid racing the completion event.
func (p *Processor) processPages(ctx context.Context, job ingest.Job, evt Event) (int, int, error) {
	pages, err := p.toPages(job.ID, evt.Pages)
	if err != nil {
		return 0, 0, err
	}
	if len(pages) == 0 {
		return 0, 0, nil
	}

	if !evt.Batch {
		step := ingest.StepProcessingPages
		status := ingest.JobStatusProcessing
		meta := mergeMetadata(job.Metadata, map[string]any{ingest.MetaCurrentURL: pages[0].URL})
		update := ingest.JobUpdate{Status: &status, Step: &step, Metadata: meta}
		if err := p.jobs.UpdateJob(ctx, job.ID, update); err != nil {
			return 0, 0, fmt.Errorf("mark processing pages: %w", err)
		}
	}

	if err := p.jobs.InsertPages(ctx, pages); err != nil {
		return 0, 0, fmt.Errorf("insert pages: %w", err)
	}
	ingest.PagesStored.Add(float64(len(pages)))

	// The persisted row count is the source of truth, not a running counter.
	total, err := p.jobs.CountPages(ctx, job.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("count pages: %w", err)
	}

	if !evt.Batch {
		step := ingest.StepGeneratingEmbeddings
		update := ingest.JobUpdate{Step: &step, PagesScraped: &total}
		if err := p.jobs.UpdateJob(ctx, job.ID, update); err != nil {
			return 0, 0, fmt.Errorf("mark generating embeddings: %w", err)
		}
	}

	res, err := p.embedder.Process(ctx, job.ID, pages, true)
	if err != nil {
		return len(pages), 0, fmt.Errorf("process embeddings: %w", err)
	}

	p.logger.Info("pages processed",
		zap.String("job_id", job.ID),
		zap.String("url", pages[0].URL),
		zap.Int("pages", len(pages)),
		zap.Int("chunks_stored", res.ChunksProcessed),
		zap.Int("chunks_total", res.TotalChunks),
	)
	p.emit(progress.Event{
		JobID:  job.ID,
		Stage:  progress.StagePageStored,
		URL:    pages[0].URL,
		Pages:  int64(len(pages)),
		Chunks: int64(res.ChunksProcessed),
	})
	return len(pages), res.ChunksProcessed, nil
}

// complete finalizes the job. The update goes through the privileged store
// when one is configured so row-level policies cannot block it.
func (p *Processor) complete(ctx context.Context, job ingest.Job) error {
	total, err := p.jobs.CountPages(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("count pages: %w", err)
	}

	meta := mergeMetadata(job.Metadata, nil)
	delete(meta, ingest.MetaIsRefreshing)
	delete(meta, ingest.MetaRefreshingPages)

	status := ingest.JobStatusCompleted
	step := ingest.StepCompleted
	update := ingest.JobUpdate{
		Status:       &status,
		Step:         &step,
		PagesScraped: &total,
		Metadata:     meta,
	}
	store := p.jobs
	if p.admin != nil {
		store = p.admin
	}
	if err := store.UpdateJob(ctx, job.ID, update); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	p.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int("pages", total),
	)
	p.emit(progress.Event{JobID: job.ID, Stage: progress.StageJobDone, Pages: int64(total)})
	return nil
}

// toPages converts crawler payloads into page rows, stripping the crawler's
// promotional boilerplate and converting HTML to markdown when needed.
func (p *Processor) toPages(jobID string, payloads []PagePayload) ([]ingest.Page, error) {
	pages := make([]ingest.Page, 0, len(payloads))
	for _, payload := range payloads {
		id, err := p.idGen.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate page id: %w", err)
		}
		markdown := firecrawl.CleanPromotion(payload.Markdown)
		if markdown == "" && payload.HTML != "" && p.convert != nil {
			converted, convErr := p.convert(payload.HTML)
			if convErr != nil {
				p.logger.Warn("html conversion failed",
					zap.String("job_id", jobID),
					zap.String("url", payload.SourceURL()),
					zap.Error(convErr),
				)
			} else {
				markdown = converted
			}
		}
		content := payload.HTML
		if content == "" {
			content = payload.Content
		}
		now := p.clock.Now()
		pages = append(pages, ingest.Page{
			ID:        id,
			JobID:     jobID,
			URL:       payload.SourceURL(),
			Title:     payload.Title(),
			Content:   content,
			Markdown:  markdown,
			Metadata:  payload.Metadata,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return pages, nil
}

func (p *Processor) emit(evt progress.Event) {
	if p.emitter == nil {
		return
	}
	evt.TS = p.clock.Now()
	p.emitter.Emit(evt)
}

// mergeMetadata copies base and overlays extra, never mutating base.
func mergeMetadata(base, extra map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
