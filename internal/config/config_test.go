package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  public_base_url: https://webagent.example.com
auth:
  enabled: true
  api_key: secret
db:
  dsn: postgres://localhost:5432/webagent
  max_conns: 8
crawler:
  api_key: fc-key
  timeout_seconds: 45
  default_page_limit: 25
embeddings:
  api_key: sk-key
  model: text-embedding-3-large
  requests_per_sec: 2.5
  max_attempts: 4
  base_delay_ms: 500
  concurrency: 3
chunking:
  max_chunk_size: 800
  hard_chunk_limit: 10000
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.PublicBaseURL != "https://webagent.example.com" {
		t.Fatalf("expected public base url, got %q", cfg.Server.PublicBaseURL)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.DB.DSN != "postgres://localhost:5432/webagent" || cfg.DB.MaxConns != 8 {
		t.Fatalf("expected db overrides to apply: %+v", cfg.DB)
	}
	if cfg.Embeddings.Model != "text-embedding-3-large" || cfg.Embeddings.MaxAttempts != 4 {
		t.Fatalf("expected embedding overrides to apply: %+v", cfg.Embeddings)
	}
	if cfg.Embeddings.RequestsPerSec != 2.5 {
		t.Fatalf("expected requests_per_sec 2.5, got %v", cfg.Embeddings.RequestsPerSec)
	}
	if cfg.Chunking.MaxChunkSize != 800 || cfg.Chunking.HardChunkLimit != 10000 {
		t.Fatalf("expected chunking overrides to apply: %+v", cfg.Chunking)
	}
	if got := cfg.CrawlerTimeout(); got != 45*time.Second {
		t.Fatalf("expected crawler timeout 45s, got %v", got)
	}
	if got := cfg.EmbeddingBaseDelay(); got != 500*time.Millisecond {
		t.Fatalf("expected base delay 500ms, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Embeddings.MaxBatchItems != 100 || cfg.Embeddings.MaxBatchTokens != 200000 {
		t.Fatalf("expected batch defaults: %+v", cfg.Embeddings)
	}
	if cfg.Embeddings.Concurrency != 5 {
		t.Fatalf("expected default concurrency 5, got %d", cfg.Embeddings.Concurrency)
	}
	if cfg.Chunking.MaxChunkSize != 1000 || cfg.Chunking.HardChunkLimit != 12000 {
		t.Fatalf("expected chunking defaults: %+v", cfg.Chunking)
	}
	if got := cfg.ProgressMaxBatchWait(); got != 500*time.Millisecond {
		t.Fatalf("expected flush interval 500ms, got %v", got)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:     ServerConfig{Port: 8080},
		Embeddings: EmbeddingsConfig{MaxAttempts: 3, Concurrency: 5},
		Chunking:   ChunkingConfig{MaxChunkSize: 1000, HardChunkLimit: 12000},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "auth missing api key",
			cfg: func() Config {
				c := base
				c.Auth.Enabled = true
				return c
			}(),
			want: "auth.api_key",
		},
		{
			name: "invalid max attempts",
			cfg: func() Config {
				c := base
				c.Embeddings.MaxAttempts = 0
				return c
			}(),
			want: "embeddings.max_attempts",
		},
		{
			name: "invalid concurrency",
			cfg: func() Config {
				c := base
				c.Embeddings.Concurrency = 0
				return c
			}(),
			want: "embeddings.concurrency",
		},
		{
			name: "invalid chunk size",
			cfg: func() Config {
				c := base
				c.Chunking.MaxChunkSize = 0
				return c
			}(),
			want: "chunking.max_chunk_size",
		},
		{
			name: "hard limit below chunk size",
			cfg: func() Config {
				c := base
				c.Chunking.HardChunkLimit = 100
				return c
			}(),
			want: "chunking.hard_chunk_limit",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
