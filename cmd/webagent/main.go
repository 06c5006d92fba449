// Package main wires together the scrape service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/api"
	"github.com/webagent/webagent/internal/clock/system"
	"github.com/webagent/webagent/internal/config"
	"github.com/webagent/webagent/internal/embed"
	"github.com/webagent/webagent/internal/embed/openai"
	"github.com/webagent/webagent/internal/firecrawl"
	"github.com/webagent/webagent/internal/id/uuid"
	"github.com/webagent/webagent/internal/ingest"
	"github.com/webagent/webagent/internal/logging"
	"github.com/webagent/webagent/internal/progress"
	"github.com/webagent/webagent/internal/progress/sinks"
	memoryStorage "github.com/webagent/webagent/internal/storage/memory"
	"github.com/webagent/webagent/internal/storage/postgres"
	"github.com/webagent/webagent/internal/webhook"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, vectors, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer cleanup()

	clock := system.New()
	idGen := uuid.New()

	provider, err := openai.New(openai.Config{
		APIKey:         cfg.Embeddings.APIKey,
		BaseURL:        cfg.Embeddings.BaseURL,
		EmbeddingModel: cfg.Embeddings.Model,
		RequestsPerSec: cfg.Embeddings.RequestsPerSec,
	})
	if err != nil {
		logger.Fatal("embedding provider init failed", zap.Error(err))
	}
	embedClient := embed.NewClient(provider, embed.ClientConfig{
		MaxAttempts: cfg.Embeddings.MaxAttempts,
		BaseDelay:   cfg.EmbeddingBaseDelay(),
	}, logger.Named("embed"))
	orchestrator := embed.NewOrchestrator(embedClient, vectors, embed.OrchestratorConfig{
		MaxChunkSize:   cfg.Chunking.MaxChunkSize,
		HardChunkLimit: cfg.Chunking.HardChunkLimit,
		MaxBatchItems:  cfg.Embeddings.MaxBatchItems,
		MaxBatchTokens: cfg.Embeddings.MaxBatchTokens,
		Concurrency:    cfg.Embeddings.Concurrency,
	}, logger.Named("orchestrator"))

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("progress metrics init failed", zap.Error(err))
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.ProgressMaxBatchWait(),
		BaseContext:    ctx,
		Logger:         logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("progress")), promSink)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		if closeErr := hub.Close(closeCtx); closeErr != nil {
			logger.Warn("progress hub close failed", zap.Error(closeErr))
		}
	}()

	converter := md.NewConverter("", true, nil)
	processor := webhook.NewProcessor(
		jobs,
		nil,
		orchestrator,
		converter.ConvertString,
		idGen,
		clock,
		hub,
		logger.Named("webhook"),
	)

	crawlClient, err := firecrawl.New(firecrawl.Config{
		APIKey:      cfg.Crawler.APIKey,
		BaseURL:     cfg.Crawler.BaseURL,
		HTTPTimeout: cfg.CrawlerTimeout(),
	}, logger.Named("firecrawl"))
	if err != nil {
		logger.Fatal("crawler client init failed", zap.Error(err))
	}

	apiServer := api.NewServer(api.Deps{
		Jobs:      jobs,
		Vectors:   vectors,
		Crawler:   crawlClient,
		Embedder:  embedClient,
		Processor: processor,
		IDGen:     idGen,
		Clock:     clock,
	}, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// buildStores selects Postgres when a DSN is configured, otherwise the
// in-memory stores for local development.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (ingest.JobStore, ingest.VectorStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Warn("no database configured, using in-memory stores")
		return memoryStorage.NewJobStore(), memoryStorage.NewVectorStore(), func() {}, nil
	}
	pool, err := postgres.Connect(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeSecond) * time.Second,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	jobs, err := postgres.NewJobStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	vectors, err := postgres.NewVectorStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return jobs, vectors, pool.Close, nil
}
