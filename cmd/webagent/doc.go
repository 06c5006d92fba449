// Package main hosts the scrape service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, scrape management
//     and similarity search endpoints plus the crawl webhook. Requests are
//     validated, persisted via the JobStore, and handed to the external
//     crawling service; results flow back asynchronously through the webhook.
//   - Event pipeline: internal/webhook.Processor normalizes crawl lifecycle
//     events, persists pages, and invokes the embedding orchestrator. The
//     orchestrator chunks page markdown, plans token-bounded batches, and
//     embeds them with bounded concurrency and per-item fallback.
//   - Persistence: Postgres (pgx) holds scrapes, scraped_pages, and pgvector
//     embedding rows; an in-memory variant backs local development and tests.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via the
//     metrics middleware and /metrics handler; the progress Hub batches
//     lifecycle events for the log and Prometheus sinks.
//
// Operational notes:
//   - Concurrency model: webhook deliveries are independent units of work; the
//     only fan-out is the orchestrator's bounded batch concurrency. Safety
//     against duplicate or out-of-order deliveries comes from the completed-job
//     skip rule and recounting pages from the store rather than trusting
//     in-memory counters.
//   - Shutdown: the process reacts to SIGTERM, drains the HTTP server, then
//     flushes the progress hub before exiting.
//
// Quick checklist:
//   - Configure env vars: WEBAGENT_SERVER_PORT, WEBAGENT_SERVER_PUBLIC_BASE_URL,
//     WEBAGENT_DB_DSN (empty selects in-memory stores), WEBAGENT_CRAWLER_API_KEY,
//     WEBAGENT_EMBEDDINGS_API_KEY, and WEBAGENT_AUTH_* when the API should be
//     key-gated.
//   - Run locally: go run ./cmd/webagent -config config.yaml (or rely solely on
//     env overrides).
package main
