// Package openai implements the embedding provider against an
// OpenAI-compatible API (OpenAI, OpenRouter) via langchaingo.
package openai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Config controls the provider connection.
type Config struct {
	APIKey         string
	BaseURL        string  // e.g. https://openrouter.ai/api/v1
	EmbeddingModel string  // e.g. openai/text-embedding-3-small
	RequestsPerSec float64 // 0 disables rate limiting
}

// Provider wraps the langchaingo OpenAI client behind the EmbeddingProvider
// interface, with an optional request-rate cap.
type Provider struct {
	llm     *openai.LLM
	limiter *rate.Limiter
}

// New constructs a Provider.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embeddings api key is required")
	}
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(cfg.EmbeddingModel))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("init openai client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	return &Provider{
		llm:     llm,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// CreateEmbedding performs one remote embedding request. Retry policy is the
// caller's concern.
func (p *Provider) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	vectors, err := p.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	return vectors, nil
}
