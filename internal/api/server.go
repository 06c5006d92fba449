// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/config"
	"github.com/webagent/webagent/internal/ingest"
	"github.com/webagent/webagent/internal/metrics"
	"github.com/webagent/webagent/internal/webhook"
)

// QueryEmbedder embeds a single query string for similarity search.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, int, error)
}

// EventProcessor consumes normalized crawl lifecycle events.
type EventProcessor interface {
	Handle(ctx context.Context, evt webhook.Event) (webhook.Outcome, error)
}

// Deps bundles the collaborators the server needs.
type Deps struct {
	Jobs      ingest.JobStore
	Vectors   ingest.VectorStore
	Crawler   ingest.CrawlClient
	Embedder  QueryEmbedder
	Processor EventProcessor
	IDGen     ingest.IDGenerator
	Clock     ingest.Clock
}

// Server wires HTTP handlers to the stores, the crawler client and the
// webhook event processor.
type Server struct {
	router    chi.Router
	jobs      ingest.JobStore
	vectors   ingest.VectorStore
	crawler   ingest.CrawlClient
	embedder  QueryEmbedder
	processor EventProcessor
	idGen     ingest.IDGenerator
	clock     ingest.Clock
	logger    *zap.Logger
	cfg       config.Config
}

// The webhook handler covers chunking and embedding of a full page batch, so
// it gets a much longer deadline than the interactive API routes.
const (
	apiTimeout     = 60 * time.Second
	webhookTimeout = 5 * time.Minute
)

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobs:      deps.Jobs,
		vectors:   deps.Vectors,
		crawler:   deps.Crawler,
		embedder:  deps.Embedder,
		processor: deps.Processor,
		idGen:     deps.IDGen,
		clock:     deps.Clock,
		logger:    logger,
		cfg:       cfg,
	}
	metrics.Init()

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Use(timeoutMiddleware(webhookTimeout))
		r.Post("/crawl", s.handleCrawlWebhook)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(apiTimeout))
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/map", s.mapSite)
		r.Route("/scrapes", func(r chi.Router) {
			r.Post("/", s.startScrape)
			r.Get("/", s.listScrapes)
			r.Route("/{scrape_id}", func(r chi.Router) {
				r.Get("/", s.getScrape)
				r.Delete("/", s.deleteScrape)
				r.Post("/rescrape", s.rescrape)
				r.Post("/refresh", s.refreshPages)
				r.Post("/search", s.search)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the only hard dependency at startup.
	if _, err := s.jobs.ListJobs(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
