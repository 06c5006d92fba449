package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/webagent/webagent/internal/firecrawl"
	"github.com/webagent/webagent/internal/ingest"
	"github.com/webagent/webagent/internal/metrics"
)

// creditErrorMessage deliberately hides provider billing details from callers.
const creditErrorMessage = "Something went wrong, please try again later or contact support"

// Similarity search defaults.
const (
	defaultSearchLimit = 10
	searchThreshold    = 0.3
)

type startScrapeRequest struct {
	URL       string `json:"url"`
	Mode      string `json:"mode"`
	PageLimit int    `json:"page_limit"`
}

type refreshRequest struct {
	PageIDs []string `json:"page_ids"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type mapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req startScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := parseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// A URL already scraped maps onto its existing job instead of starting a
	// second crawl.
	existing, err := s.jobs.FindJobByURL(r.Context(), req.URL)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":            true,
			"existing_scrape_id": existing.ID,
		})
		return
	case !errors.Is(err, ingest.ErrNotFound):
		writeError(w, http.StatusInternalServerError, "failed to check existing scrapes")
		return
	}

	limit := s.pageLimit(mode, req.PageLimit)
	jobID, err := s.createJob(r.Context(), req.URL, mode, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ObserveScrapeStart(req.URL)

	if err := s.startCrawl(r.Context(), jobID, req.URL, limit); err != nil {
		s.failStart(r.Context(), w, jobID, err)
		return
	}

	update := ingest.StatusUpdate(ingest.JobStatusPending, ingest.StepCrawling)
	if err := s.jobs.UpdateJob(r.Context(), jobID, update); err != nil {
		s.logger.Warn("failed to mark job crawling", zap.String("scrape_id", jobID), zap.Error(err))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "scrape_id": jobID})
}

func (s *Server) listScrapes(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list scrapes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scrapes": jobs})
}

func (s *Server) getScrape(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "scrape_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scrape not found")
		return
	}
	pages, err := s.jobs.ListPages(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch scrape pages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scrape": job, "pages": pages})
}

func (s *Server) deleteScrape(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "scrape_id")
	if err := s.jobs.DeleteJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusNotFound, "scrape not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// rescrape starts a fresh job for the same URL with the same settings. The
// old job and its pages stay until the caller deletes them.
func (s *Server) rescrape(w http.ResponseWriter, r *http.Request) {
	old, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "scrape_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "scrape not found")
		return
	}

	jobID, err := s.createJob(r.Context(), old.URL, old.Mode, old.PageLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	metrics.ObserveScrapeStart(old.URL)

	if err := s.startCrawl(r.Context(), jobID, old.URL, old.PageLimit); err != nil {
		s.failStart(r.Context(), w, jobID, err)
		return
	}

	update := ingest.StatusUpdate(ingest.JobStatusPending, ingest.StepCrawling)
	if err := s.jobs.UpdateJob(r.Context(), jobID, update); err != nil {
		s.logger.Warn("failed to mark job crawling", zap.String("scrape_id", jobID), zap.Error(err))
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "scrape_id": jobID})
}

// refreshPages re-scrapes a subset of a completed job's pages. The selected
// page rows (and their embeddings) are dropped, then a batch scrape delivers
// fresh content through the webhook tagged as a batch operation.
func (s *Server) refreshPages(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "scrape_id")
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PageIDs) == 0 {
		writeError(w, http.StatusBadRequest, "page_ids required")
		return
	}

	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scrape not found")
		return
	}
	pages, err := s.jobs.ListPages(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch scrape pages")
		return
	}

	wanted := make(map[string]bool, len(req.PageIDs))
	for _, id := range req.PageIDs {
		wanted[id] = true
	}
	var (
		ids  []string
		urls []string
	)
	for _, page := range pages {
		if wanted[page.ID] {
			ids = append(ids, page.ID)
			urls = append(urls, page.URL)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "no matching pages")
		return
	}

	meta := copyMetadata(job.Metadata)
	meta[ingest.MetaIsRefreshing] = true
	meta[ingest.MetaRefreshingPages] = urls
	status := ingest.JobStatusProcessing
	step := ingest.StepCrawling
	update := ingest.JobUpdate{Status: &status, Step: &step, Metadata: meta}
	if err := s.jobs.UpdateJob(r.Context(), jobID, update); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update scrape")
		return
	}
	if err := s.jobs.DeletePages(r.Context(), jobID, ids); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete pages")
		return
	}

	if _, err := s.crawler.BatchScrape(r.Context(), urls, s.webhookURL(jobID, true)); err != nil {
		s.logger.Error("batch scrape failed", zap.String("scrape_id", jobID), zap.Error(err))
		// Put the job back so it is not stuck mid-refresh.
		s.restoreCompleted(r.Context(), jobID, job.Metadata)
		writeError(w, http.StatusBadGateway, "failed to start refresh")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "pages_refreshing": len(urls)})
}

// search embeds the query and returns the most similar stored chunks.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "scrape_id")
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if _, err := s.jobs.GetJob(r.Context(), jobID); err != nil {
		writeError(w, http.StatusNotFound, "scrape not found")
		return
	}

	vector, _, err := s.embedder.EmbedOne(r.Context(), req.Query)
	if err != nil {
		s.logger.Error("query embedding failed", zap.String("scrape_id", jobID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to embed query")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultSearchLimit
	}
	results, err := s.vectors.Search(r.Context(), jobID, vector, topK, searchThreshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []ingest.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// mapSite lists the URLs the crawler would visit for a site, without
// creating a job.
func (s *Server) mapSite(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.Crawler.DefaultPageLimit
	}
	links, err := s.crawler.MapSite(r.Context(), req.URL, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to map site")
		return
	}
	if links == nil {
		links = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": links})
}

func (s *Server) createJob(ctx context.Context, rawURL string, mode ingest.CrawlMode, limit int) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate scrape id: %w", err)
	}
	now := s.clock.Now()
	job := ingest.Job{
		ID:        jobID,
		URL:       rawURL,
		Mode:      mode,
		PageLimit: limit,
		Status:    ingest.JobStatusPending,
		Step:      ingest.StepAnalyzing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create scrape: %w", err)
	}
	return jobID, nil
}

func (s *Server) startCrawl(ctx context.Context, jobID, rawURL string, limit int) error {
	_, err := s.crawler.StartCrawl(ctx, rawURL, limit, s.webhookURL(jobID, false))
	return err
}

// failStart cleans up after a crawl that never got off the ground. Credit
// exhaustion rolls the job back entirely; anything else leaves a failed job
// with the provider's message.
func (s *Server) failStart(ctx context.Context, w http.ResponseWriter, jobID string, err error) {
	if firecrawl.IsCreditError(err) {
		if delErr := s.jobs.DeleteJob(ctx, jobID); delErr != nil {
			s.logger.Warn("credit rollback failed", zap.String("scrape_id", jobID), zap.Error(delErr))
		}
		writeError(w, http.StatusBadGateway, creditErrorMessage)
		return
	}
	msg := err.Error()
	status := ingest.JobStatusFailed
	update := ingest.JobUpdate{Status: &status, ErrorMessage: &msg}
	if updErr := s.jobs.UpdateJob(ctx, jobID, update); updErr != nil {
		s.logger.Warn("failed to mark job failed", zap.String("scrape_id", jobID), zap.Error(updErr))
	}
	writeError(w, http.StatusBadGateway, "failed to start crawl")
}

func (s *Server) restoreCompleted(ctx context.Context, jobID string, meta map[string]any) {
	restored := copyMetadata(meta)
	delete(restored, ingest.MetaIsRefreshing)
	delete(restored, ingest.MetaRefreshingPages)
	status := ingest.JobStatusCompleted
	step := ingest.StepCompleted
	update := ingest.JobUpdate{Status: &status, Step: &step, Metadata: restored}
	if err := s.jobs.UpdateJob(ctx, jobID, update); err != nil {
		s.logger.Warn("failed to restore scrape status", zap.String("scrape_id", jobID), zap.Error(err))
	}
}

func (s *Server) pageLimit(mode ingest.CrawlMode, requested int) int {
	if mode == ingest.CrawlModeSingle {
		return 1
	}
	if requested > 0 {
		return requested
	}
	return s.cfg.Crawler.DefaultPageLimit
}

// webhookURL builds the callback the crawler posts lifecycle events to.
func (s *Server) webhookURL(jobID string, batch bool) string {
	base := strings.TrimRight(s.cfg.Server.PublicBaseURL, "/")
	u := fmt.Sprintf("%s/api/webhooks/crawl?scrapeId=%s", base, url.QueryEscape(jobID))
	if batch {
		u += "&type=batch"
	}
	return u
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("a valid http(s) url is required")
	}
	return nil
}

func parseMode(mode string) (ingest.CrawlMode, error) {
	switch mode {
	case "", string(ingest.CrawlModeFull):
		return ingest.CrawlModeFull, nil
	case string(ingest.CrawlModeSingle):
		return ingest.CrawlModeSingle, nil
	default:
		return "", fmt.Errorf("unknown crawl mode %q", mode)
	}
}

func copyMetadata(meta map[string]any) map[string]any {
	copied := make(map[string]any, len(meta))
	for k, v := range meta {
		copied[k] = v
	}
	return copied
}
