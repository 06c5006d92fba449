// Package embed turns chunk text into persisted vector rows. The Client wraps
// a remote embedding provider with retry and input hygiene; the Orchestrator
// drives batched, concurrency-bounded runs over whole pages.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/ingest"
)

// Defaults for the retry loop.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// ErrEmptyInput is returned when there is nothing embeddable in the input.
var ErrEmptyInput = errors.New("input is empty or whitespace only")

// EmbeddingError wraps the last provider failure after retries are exhausted.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// ClientConfig controls retry behavior. Attempt count and delay are
// configuration rather than literals so tests can run against a fake sleeper.
type ClientConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Client calls an embedding provider with exponential-backoff retry and
// empty-input filtering. It performs no persistence.
type Client struct {
	provider    ingest.EmbeddingProvider
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(context.Context, time.Duration) error
	logger      *zap.Logger
}

// NewClient constructs a Client around the provider.
func NewClient(provider ingest.EmbeddingProvider, cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider:    provider,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// BatchResult carries the vectors for one call plus the attempts used.
type BatchResult struct {
	Vectors  [][]float32
	Attempts int
}

// EmbedBatch embeds texts, returning exactly one vector per input in input
// order. Empty or whitespace-only entries are filtered out before the remote
// call and resolve to nil vectors in the result, so callers must tolerate
// empty vectors. The call fails immediately when every input is empty, and
// with an EmbeddingError after MaxAttempts provider failures.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) (BatchResult, error) {
	if c.provider == nil {
		return BatchResult{}, errors.New("no embedding provider configured")
	}

	valid := make([]string, 0, len(texts))
	indexes := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) != "" {
			valid = append(valid, text)
			indexes = append(indexes, i)
		}
	}
	if len(valid) == 0 {
		return BatchResult{}, fmt.Errorf("embed batch: %w", ErrEmptyInput)
	}
	if dropped := len(texts) - len(valid); dropped > 0 {
		c.logger.Warn("filtered empty inputs from embedding batch",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(valid)),
		)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		vectors, err := c.provider.CreateEmbedding(ctx, valid)
		if err == nil && len(vectors) != len(valid) {
			err = fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(valid))
		}
		if err == nil {
			out := make([][]float32, len(texts))
			for i, vec := range vectors {
				out[indexes[i]] = vec
			}
			return BatchResult{Vectors: out, Attempts: attempt}, nil
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}
		ingest.EmbeddingRetries.Inc()
		delay := c.baseDelay << (attempt - 1)
		c.logger.Warn("embedding attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return BatchResult{}, fmt.Errorf("embed batch canceled: %w", sleepErr)
		}
	}
	return BatchResult{}, &EmbeddingError{Attempts: c.maxAttempts, Err: lastErr}
}

// EmbedOne embeds a single text. An empty input fails immediately with no
// retry. Returns the vector and the attempts used.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, 0, fmt.Errorf("embed: %w", ErrEmptyInput)
	}
	res, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, res.Attempts, err
	}
	return res.Vectors[0], res.Attempts, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
