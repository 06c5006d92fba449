package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webagent/webagent/internal/ingest"
)

func TestServer_StartScrape_Succeeds(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	req := httptest.NewRequest(http.MethodPost, "/v1/scrapes",
		bodyReader(`{"url":"https://example.com/docs","mode":"full"}`))

	rec := env.do(req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "scrape-1")

	require.Equal(t, []string{"https://example.com/docs"}, env.crawler.startURLs)
	require.Equal(t, []int{10}, env.crawler.startLimits)
	require.Equal(t,
		"https://webagent.example.com/api/webhooks/crawl?scrapeId=scrape-1",
		env.crawler.startWebhooks[0],
	)

	job, err := env.jobs.GetJob(context.Background(), "scrape-1")
	require.NoError(t, err)
	require.Equal(t, ingest.JobStatusPending, job.Status)
	require.Equal(t, ingest.StepCrawling, job.Step)
	require.Equal(t, ingest.CrawlModeFull, job.Mode)
}

func TestServer_StartScrape_SingleModeUsesOnePage(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes",
		bodyReader(`{"url":"https://example.com","mode":"single","page_limit":50}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []int{1}, env.crawler.startLimits)
}

func TestServer_StartScrape_InvalidInput(t *testing.T) {
	t.Parallel()

	env := newTestEnv()

	for name, body := range map[string]string{
		"bad json":     "{invalid",
		"missing url":  `{}`,
		"bad scheme":   `{"url":"ftp://example.com"}`,
		"unknown mode": `{"url":"https://example.com","mode":"turbo"}`,
	} {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes", bodyReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
	require.Empty(t, env.crawler.startURLs)
}

func TestServer_StartScrape_DedupesByURL(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "existing", URL: "https://example.com", Status: ingest.JobStatusCompleted})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes",
		bodyReader(`{"url":"https://example.com"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "existing_scrape_id")
	require.Contains(t, rec.Body.String(), "existing")
	require.Empty(t, env.crawler.startURLs)
}

func TestServer_StartScrape_CreditErrorRollsBack(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.crawler.startErr = errors.New("status 402: Insufficient credits to perform this request")

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes",
		bodyReader(`{"url":"https://example.com"}`)))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), creditErrorMessage)
	require.NotContains(t, rec.Body.String(), "credits")

	_, err := env.jobs.GetJob(context.Background(), "scrape-1")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestServer_StartScrape_CrawlerErrorMarksFailed(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.crawler.startErr = errors.New("status 500: upstream exploded")

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes",
		bodyReader(`{"url":"https://example.com"}`)))

	require.Equal(t, http.StatusBadGateway, rec.Code)

	job, err := env.jobs.GetJob(context.Background(), "scrape-1")
	require.NoError(t, err)
	require.Equal(t, ingest.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorMessage, "upstream exploded")
}

func TestServer_GetScrape_ReturnsJobAndPages(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "scrape-a", URL: "https://example.com", Status: ingest.JobStatusCompleted})
	require.NoError(t, env.jobs.InsertPages(context.Background(), []ingest.Page{
		{ID: "page-1", JobID: "scrape-a", URL: "https://example.com/a", Title: "Alpha"},
	}))

	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/scrapes/scrape-a", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"scrape"`)
	require.Contains(t, rec.Body.String(), "Alpha")
}

func TestServer_GetScrape_NotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	rec := env.do(httptest.NewRequest(http.MethodGet, "/v1/scrapes/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteScrape(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "scrape-a", URL: "https://example.com"})

	rec := env.do(httptest.NewRequest(http.MethodDelete, "/v1/scrapes/scrape-a", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := env.jobs.GetJob(context.Background(), "scrape-a")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestServer_Rescrape_CreatesNewJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{
		ID:        "old",
		URL:       "https://example.com",
		Mode:      ingest.CrawlModeFull,
		PageLimit: 25,
		Status:    ingest.JobStatusCompleted,
	})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes/old/rescrape", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "scrape-1")
	require.Equal(t, []int{25}, env.crawler.startLimits)

	fresh, err := env.jobs.GetJob(context.Background(), "scrape-1")
	require.NoError(t, err)
	require.Equal(t, "https://example.com", fresh.URL)
	require.Equal(t, ingest.CrawlModeFull, fresh.Mode)
	require.Equal(t, 25, fresh.PageLimit)
}

func TestServer_RefreshPages(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "scrape-a", URL: "https://example.com", Status: ingest.JobStatusCompleted})
	require.NoError(t, env.jobs.InsertPages(context.Background(), []ingest.Page{
		{ID: "page-1", JobID: "scrape-a", URL: "https://example.com/a"},
		{ID: "page-2", JobID: "scrape-a", URL: "https://example.com/b"},
	}))

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes/scrape-a/refresh",
		bodyReader(`{"page_ids":["page-1"]}`)))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), `"pages_refreshing":1`)

	require.Equal(t, [][]string{{"https://example.com/a"}}, env.crawler.batchURLs)
	require.Contains(t, env.crawler.batchWebhooks[0], "scrapeId=scrape-a")
	require.Contains(t, env.crawler.batchWebhooks[0], "type=batch")

	job, err := env.jobs.GetJob(context.Background(), "scrape-a")
	require.NoError(t, err)
	require.Equal(t, ingest.JobStatusProcessing, job.Status)
	require.Equal(t, true, job.Metadata[ingest.MetaIsRefreshing])

	pages, err := env.jobs.ListPages(context.Background(), "scrape-a")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "page-2", pages[0].ID)
}

func TestServer_RefreshPages_RestoresCompletedOnError(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.crawler.batchErr = errors.New("status 500: nope")
	env.seedJob(t, ingest.Job{
		ID:       "scrape-a",
		URL:      "https://example.com",
		Status:   ingest.JobStatusCompleted,
		Metadata: map[string]any{"source": "ui"},
	})
	require.NoError(t, env.jobs.InsertPages(context.Background(), []ingest.Page{
		{ID: "page-1", JobID: "scrape-a", URL: "https://example.com/a"},
	}))

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes/scrape-a/refresh",
		bodyReader(`{"page_ids":["page-1"]}`)))

	require.Equal(t, http.StatusBadGateway, rec.Code)

	job, err := env.jobs.GetJob(context.Background(), "scrape-a")
	require.NoError(t, err)
	require.Equal(t, ingest.JobStatusCompleted, job.Status)
	require.NotContains(t, job.Metadata, ingest.MetaIsRefreshing)
	require.Equal(t, "ui", job.Metadata["source"])
}

func TestServer_RefreshPages_NoMatchingPages(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "scrape-a", URL: "https://example.com", Status: ingest.JobStatusCompleted})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes/scrape-a/refresh",
		bodyReader(`{"page_ids":["ghost"]}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, env.crawler.batchURLs)
}

func TestServer_Search(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "scrape-a", URL: "https://example.com", Status: ingest.JobStatusCompleted})
	require.NoError(t, env.vectors.InsertEmbeddings(context.Background(), []ingest.EmbeddingRecord{
		{JobID: "scrape-a", PageID: "page-1", Content: "all about gophers", Vector: []float32{1, 0, 0}},
		{JobID: "scrape-a", PageID: "page-1", Content: "unrelated", Vector: []float32{0, 1, 0}},
	}))

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes/scrape-a/search",
		bodyReader(`{"query":"gophers"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "all about gophers")
	require.NotContains(t, rec.Body.String(), "unrelated")
}

func TestServer_Search_MissingQuery(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seedJob(t, ingest.Job{ID: "scrape-a", URL: "https://example.com"})

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/scrapes/scrape-a/search",
		bodyReader(`{"query":"  "}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_MapSite(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.crawler.mapLinks = []string{"https://example.com/a", "https://example.com/b"}

	rec := env.do(httptest.NewRequest(http.MethodPost, "/v1/map",
		bodyReader(`{"url":"https://example.com"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "https://example.com/b")
}
