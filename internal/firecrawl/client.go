// Package firecrawl implements a thin client for the Firecrawl v2 REST API,
// used to start asynchronous crawl and batch scrape jobs whose results arrive
// back through webhooks.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the hosted Firecrawl endpoint.
const DefaultBaseURL = "https://api.firecrawl.dev"

const defaultHTTPTimeout = 30 * time.Second

// scrapeFormats are requested for every page so pages can be stored as
// markdown with an HTML fallback.
var scrapeFormats = []string{"markdown", "html"}

// Config carries client settings.
type Config struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
}

// Client calls the Firecrawl API. Crawl and batch scrape operations only
// start jobs; page payloads are delivered asynchronously to the webhook URL.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New constructs a Client from cfg, applying defaults for the base URL and
// HTTP timeout.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("firecrawl api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type scrapeOptions struct {
	Formats []string `json:"formats"`
}

type webhookSpec struct {
	URL string `json:"url"`
}

type crawlRequest struct {
	URL           string        `json:"url"`
	Limit         int           `json:"limit,omitempty"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
	Webhook       *webhookSpec  `json:"webhook,omitempty"`
}

type batchScrapeRequest struct {
	URLs          []string      `json:"urls"`
	ScrapeOptions scrapeOptions `json:"scrapeOptions"`
	Webhook       *webhookSpec  `json:"webhook,omitempty"`
}

type mapRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit,omitempty"`
}

type startResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Error   string `json:"error"`
}

type mapResponse struct {
	Success bool     `json:"success"`
	Links   []string `json:"links"`
	Error   string   `json:"error"`
}

// StartCrawl starts an asynchronous crawl of url and returns the crawl job ID.
// Page results are delivered to webhookURL as they complete.
func (c *Client) StartCrawl(ctx context.Context, url string, limit int, webhookURL string) (string, error) {
	req := crawlRequest{
		URL:           url,
		Limit:         limit,
		ScrapeOptions: scrapeOptions{Formats: scrapeFormats},
	}
	if webhookURL != "" {
		req.Webhook = &webhookSpec{URL: webhookURL}
	}
	var resp startResponse
	if err := c.post(ctx, "/v2/crawl", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("start crawl: %s", orUnknown(resp.Error))
	}
	c.logger.Info("crawl started",
		zap.String("url", url),
		zap.Int("limit", limit),
		zap.String("crawl_id", resp.ID),
	)
	return resp.ID, nil
}

// BatchScrape starts an asynchronous scrape of the given URLs and returns the
// batch job ID.
func (c *Client) BatchScrape(ctx context.Context, urls []string, webhookURL string) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("batch scrape: no urls")
	}
	req := batchScrapeRequest{
		URLs:          urls,
		ScrapeOptions: scrapeOptions{Formats: scrapeFormats},
	}
	if webhookURL != "" {
		req.Webhook = &webhookSpec{URL: webhookURL}
	}
	var resp startResponse
	if err := c.post(ctx, "/v2/batch/scrape", req, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("batch scrape: %s", orUnknown(resp.Error))
	}
	c.logger.Info("batch scrape started",
		zap.Int("urls", len(urls)),
		zap.String("batch_id", resp.ID),
	)
	return resp.ID, nil
}

// MapSite lists the URLs discoverable from url, up to limit when positive.
func (c *Client) MapSite(ctx context.Context, url string, limit int) ([]string, error) {
	var resp mapResponse
	if err := c.post(ctx, "/v2/map", mapRequest{URL: url, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if !resp.Success && resp.Error != "" {
		return nil, fmt.Errorf("map site: %s", resp.Error)
	}
	return resp.Links, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("failed to close response body", zap.Error(cerr))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, apiError(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// apiError pulls a human-readable message out of an error response body.
func apiError(raw []byte) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "unknown error"
	}
	return msg
}

func orUnknown(msg string) string {
	if msg == "" {
		return "no job id returned"
	}
	return msg
}
