// Package api hosts the HTTP server, middleware, and REST handlers for the
// scrape service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /api/webhooks/crawl for crawl lifecycle events.
//   - /v1/scrapes for starting, inspecting, refreshing and searching scrapes.
package api
