package embed

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/chunk"
	"github.com/webagent/webagent/internal/ingest"
)

// Orchestrator defaults.
const (
	DefaultHardChunkLimit = 12000
	DefaultConcurrency    = 5
)

// OrchestratorConfig controls chunking limits and batch fan-out.
type OrchestratorConfig struct {
	MaxChunkSize   int // target chunk size for the markdown chunker
	HardChunkLimit int // chunks above this are force-split before batching
	MaxBatchItems  int
	MaxBatchTokens int
	Concurrency    int // in-flight batches per group
}

// Result reports how many chunks were stored vs discovered. A partial
// mismatch is surfaced through these counts, never as an error.
type Result struct {
	ChunksProcessed int
	TotalChunks     int
}

// Orchestrator turns scraped pages into persisted vector rows. It bounds the
// failure blast radius: a failed batch falls back to per-item embedding, and
// per-item failures are counted and skipped. It never mutates job state; that
// is the caller's responsibility.
type Orchestrator struct {
	client  *Client
	vectors ingest.VectorStore
	cfg     OrchestratorConfig
	logger  *zap.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(client *Client, vectors ingest.VectorStore, cfg OrchestratorConfig, logger *zap.Logger) *Orchestrator {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunk.DefaultMaxSize
	}
	if cfg.HardChunkLimit <= 0 {
		cfg.HardChunkLimit = DefaultHardChunkLimit
	}
	if cfg.MaxBatchItems <= 0 {
		cfg.MaxBatchItems = chunk.DefaultMaxBatchItems
	}
	if cfg.MaxBatchTokens <= 0 {
		cfg.MaxBatchTokens = chunk.DefaultMaxBatchTokens
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:  client,
		vectors: vectors,
		cfg:     cfg,
		logger:  logger,
	}
}

// Process chunks, embeds and stores every page's text. Batches run in groups
// of cfg.Concurrency; all batches in a group complete before the next group
// starts. quiet suppresses per-batch warning logs during webhook processing.
func (o *Orchestrator) Process(ctx context.Context, jobID string, pages []ingest.Page, quiet bool) (Result, error) {
	if o.vectors == nil {
		return Result{}, errors.New("no vector store configured")
	}
	if o.client == nil {
		return Result{}, errors.New("no embedding client configured")
	}

	all := o.collectChunks(pages)
	if len(all) == 0 {
		return Result{}, nil
	}

	batches := chunk.PlanBatches(all, o.cfg.MaxBatchItems, o.cfg.MaxBatchTokens)

	var (
		mu        sync.Mutex
		processed int
	)
	for start := 0; start < len(batches); start += o.cfg.Concurrency {
		end := start + o.cfg.Concurrency
		if end > len(batches) {
			end = len(batches)
		}
		var wg sync.WaitGroup
		for i, batch := range batches[start:end] {
			wg.Add(1)
			go func(index int, batch []ingest.Chunk) {
				defer wg.Done()
				stored := o.processBatch(ctx, jobID, index, batch, quiet)
				mu.Lock()
				processed += stored
				mu.Unlock()
			}(start+i, batch)
		}
		wg.Wait()
	}

	return Result{ChunksProcessed: processed, TotalChunks: len(all)}, nil
}

// collectChunks runs the markdown chunker per page and hard-splits any chunk
// over HardChunkLimit so no single embedding input can blow the request.
func (o *Orchestrator) collectChunks(pages []ingest.Page) []ingest.Chunk {
	var all []ingest.Chunk
	for _, page := range pages {
		text := page.Text()
		if text == "" {
			continue
		}
		for _, c := range chunk.Markdown(text, o.cfg.MaxChunkSize) {
			if len(c) > o.cfg.HardChunkLimit {
				for _, sub := range chunk.SafeSplit(c, o.cfg.HardChunkLimit) {
					all = append(all, ingest.Chunk{Content: sub, PageID: page.ID})
				}
			} else {
				all = append(all, ingest.Chunk{Content: c, PageID: page.ID})
			}
		}
	}
	return all
}

// processBatch embeds one batch and bulk-inserts the rows. When the batch
// call fails after the client's own retries, every chunk is retried
// individually; per-item failures are skipped. Returns the stored row count.
func (o *Orchestrator) processBatch(ctx context.Context, jobID string, index int, batch []ingest.Chunk, quiet bool) int {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	res, err := o.client.EmbedBatch(ctx, texts)
	if err != nil {
		ingest.EmbeddingBatches.WithLabelValues("fallback").Inc()
		if !quiet {
			o.logger.Warn("embedding batch failed, falling back to per-item calls",
				zap.String("job_id", jobID),
				zap.Int("batch", index),
				zap.Int("items", len(batch)),
				zap.Error(err),
			)
		}
		return o.processItems(ctx, jobID, batch)
	}
	ingest.EmbeddingBatches.WithLabelValues("ok").Inc()

	rows := make([]ingest.EmbeddingRecord, len(batch))
	for i, c := range batch {
		rows[i] = ingest.EmbeddingRecord{
			JobID:   jobID,
			PageID:  c.PageID,
			Content: c.Content,
			Vector:  res.Vectors[i],
		}
	}
	if err := o.vectors.InsertEmbeddings(ctx, rows); err != nil {
		o.logger.Error("embedding batch insert failed",
			zap.String("job_id", jobID),
			zap.Int("batch", index),
			zap.Error(err),
		)
		return 0
	}
	ingest.EmbeddingsStored.Add(float64(len(rows)))
	return len(rows)
}

func (o *Orchestrator) processItems(ctx context.Context, jobID string, batch []ingest.Chunk) int {
	stored := 0
	for _, c := range batch {
		vec, _, err := o.client.EmbedOne(ctx, c.Content)
		if err != nil {
			o.logger.Debug("fallback embedding failed, skipping chunk",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			continue
		}
		row := ingest.EmbeddingRecord{
			JobID:   jobID,
			PageID:  c.PageID,
			Content: c.Content,
			Vector:  vec,
		}
		if err := o.vectors.InsertEmbeddings(ctx, []ingest.EmbeddingRecord{row}); err != nil {
			o.logger.Error("fallback embedding insert failed",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
			continue
		}
		stored++
	}
	if stored > 0 {
		ingest.EmbeddingsStored.Add(float64(stored))
	}
	return stored
}
