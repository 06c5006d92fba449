package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/ingest"
	"github.com/webagent/webagent/internal/webhook"
)

// handleCrawlWebhook receives crawl lifecycle events from the external
// crawler. Any 5xx answer tells the crawler to redeliver the event.
func (s *Server) handleCrawlWebhook(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("scrapeId")
	batch := r.URL.Query().Get("type") == "batch"

	var body webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	evt := webhook.Normalize(body, jobID, batch)
	out, err := s.processor.Handle(r.Context(), evt)
	switch {
	case errors.Is(err, webhook.ErrMissingJobID):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ingest.ErrNotFound):
		writeError(w, http.StatusNotFound, "scrape not found")
		return
	case err != nil:
		s.logger.Error("webhook event failed",
			zap.String("scrape_id", evt.JobID),
			zap.String("kind", string(evt.Kind)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if out.Skipped {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "skipped": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
