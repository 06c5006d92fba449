// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	DB         DBConfig         `mapstructure:"db"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Progress   ProgressConfig   `mapstructure:"progress"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// PublicBaseURL is the externally reachable base used to build webhook
	// callback URLs, e.g. https://webagent.example.com.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory stores.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int    `mapstructure:"max_conns"`
	MinConns           int    `mapstructure:"min_conns"`
	ConnLifetimeSecond int    `mapstructure:"conn_lifetime_seconds"`
}

// CrawlerConfig governs the external crawling service.
type CrawlerConfig struct {
	APIKey           string `mapstructure:"api_key"`
	BaseURL          string `mapstructure:"base_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	DefaultPageLimit int    `mapstructure:"default_page_limit"`
}

// EmbeddingsConfig governs the embedding provider and batch orchestration.
type EmbeddingsConfig struct {
	APIKey         string  `mapstructure:"api_key"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	MaxAttempts    int     `mapstructure:"max_attempts"`
	BaseDelayMs    int     `mapstructure:"base_delay_ms"`
	MaxBatchItems  int     `mapstructure:"max_batch_items"`
	MaxBatchTokens int     `mapstructure:"max_batch_tokens"`
	Concurrency    int     `mapstructure:"concurrency"`
}

// ChunkingConfig bounds chunk sizes fed to the embedder.
type ChunkingConfig struct {
	MaxChunkSize   int `mapstructure:"max_chunk_size"`
	HardChunkLimit int `mapstructure:"hard_chunk_limit"`
}

// ProgressConfig tunes the progress hub buffering.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.default_page_limit", 10)
	v.SetDefault("embeddings.model", "text-embedding-3-small")
	v.SetDefault("embeddings.max_attempts", 3)
	v.SetDefault("embeddings.base_delay_ms", 1000)
	v.SetDefault("embeddings.max_batch_items", 100)
	v.SetDefault("embeddings.max_batch_tokens", 200000)
	v.SetDefault("embeddings.concurrency", 5)
	v.SetDefault("chunking.max_chunk_size", 1000)
	v.SetDefault("chunking.hard_chunk_limit", 12000)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Embeddings.MaxAttempts <= 0 {
		return fmt.Errorf("embeddings.max_attempts must be > 0")
	}
	if c.Embeddings.Concurrency <= 0 {
		return fmt.Errorf("embeddings.concurrency must be > 0")
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be > 0")
	}
	if c.Chunking.HardChunkLimit < c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.hard_chunk_limit must be >= chunking.max_chunk_size")
	}
	return nil
}

// CrawlerTimeout converts the crawler timeout into a duration.
func (c Config) CrawlerTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// EmbeddingBaseDelay converts the retry base delay into a duration.
func (c Config) EmbeddingBaseDelay() time.Duration {
	return time.Duration(c.Embeddings.BaseDelayMs) * time.Millisecond
}

// ProgressMaxBatchWait converts the hub flush interval into a duration.
func (c Config) ProgressMaxBatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}
