package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webagent/webagent/internal/ingest"
	"github.com/webagent/webagent/internal/webhook"
)

func TestServer_Webhook_PageEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.processor.out = webhook.Outcome{PagesStored: 1, ChunksProcessed: 3}

	body := `{"type":"crawl.page","data":[{"url":"https://example.com/a","markdown":"# Hi"}]}`
	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl?scrapeId=scrape-a", bodyReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true}`, rec.Body.String())

	require.Len(t, env.processor.events, 1)
	evt := env.processor.events[0]
	require.Equal(t, "scrape-a", evt.JobID)
	require.Equal(t, webhook.KindPage, evt.Kind)
	require.False(t, evt.Batch)
	require.Len(t, evt.Pages, 1)
}

func TestServer_Webhook_BatchFlag(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl?scrapeId=scrape-a&type=batch",
		bodyReader(`{"type":"batch_scrape.completed"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, env.processor.events[0].Batch)
	require.Equal(t, webhook.KindCompleted, env.processor.events[0].Kind)
}

func TestServer_Webhook_SkippedEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.processor.out = webhook.Outcome{Skipped: true}

	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl?scrapeId=scrape-a",
		bodyReader(`{"type":"crawl.page"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"skipped":true}`, rec.Body.String())
}

func TestServer_Webhook_MissingJobID(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.processor.err = webhook.ErrMissingJobID

	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl", bodyReader(`{"type":"crawl.page"}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "no scrape id")
}

func TestServer_Webhook_UnknownJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.processor.err = fmt.Errorf("get job nope: %w", ingest.ErrNotFound)

	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl?scrapeId=nope", bodyReader(`{"type":"crawl.page"}`)))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Webhook_InternalError(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.processor.err = errors.New("db on fire")

	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl?scrapeId=scrape-a", bodyReader(`{"type":"crawl.page"}`)))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal details stay out of the response; the crawler only needs a 5xx.
	require.NotContains(t, rec.Body.String(), "db on fire")
}

func TestServer_Webhook_InvalidJSON(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec := env.do(httptest.NewRequest(http.MethodPost,
		"/api/webhooks/crawl?scrapeId=scrape-a", bodyReader("{nope")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, env.processor.events)
}
