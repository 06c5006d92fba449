// Package webhook consumes crawl lifecycle events from the external crawling
// service and drives jobs from pending to a terminal state.
package webhook

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind is the normalized event type. The crawling service reports lifecycle
// milestones under several naming variants (crawl.*, batch.scrape.job.*,
// batch_scrape.*); all of them collapse onto this enumeration before any
// business logic runs.
type Kind string

// Normalized event kinds.
const (
	KindUnknown   Kind = "unknown"
	KindStarted   Kind = "started"
	KindPage      Kind = "page"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Payload is the raw inbound webhook body.
type Payload struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	Error    json.RawMessage `json:"error"`
	Success  *bool           `json:"success"`
	Status   string          `json:"status"`
	Metadata PayloadMetadata `json:"metadata"`
}

// PayloadMetadata carries addressing info embedded in the body.
type PayloadMetadata struct {
	ScrapeID string `json:"scrapeId"`
}

// PagePayload is one scraped document as delivered by the crawler.
type PagePayload struct {
	URL      string         `json:"url"`
	Markdown string         `json:"markdown"`
	HTML     string         `json:"html"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// SourceURL prefers the crawler-reported source URL over the top-level one.
func (p PagePayload) SourceURL() string {
	if p.Metadata != nil {
		if u, ok := p.Metadata["sourceURL"].(string); ok && u != "" {
			return u
		}
	}
	return p.URL
}

// Title returns the page title from crawler metadata, if any.
func (p PagePayload) Title() string {
	if p.Metadata != nil {
		if t, ok := p.Metadata["title"].(string); ok {
			return t
		}
	}
	return ""
}

// HasContent reports whether the payload carries anything worth persisting.
func (p PagePayload) HasContent() bool {
	return p.Markdown != "" || p.HTML != "" || p.Content != ""
}

// Event is a fully normalized crawl lifecycle event.
type Event struct {
	JobID     string
	Kind      Kind
	Batch     bool // part of a selective-refresh (batch) operation
	ErrorText string
	Pages     []PagePayload
}

var (
	startedTypes = map[string]bool{
		"crawl.started":            true,
		"batch.scrape.job.started": true,
		"batch_scrape.started":     true,
	}
	pageTypes = map[string]bool{
		"crawl.page":        true,
		"batch.scrape.page": true,
		"batch_scrape.page": true,
	}
	completedTypes = map[string]bool{
		"crawl.completed":            true,
		"batch.scrape.job.completed": true,
		"batch_scrape.completed":     true,
	}
	failedTypes = map[string]bool{
		"crawl.failed":            true,
		"batch.scrape.job.failed": true,
		"batch_scrape.failed":     true,
	}
)

// Normalize maps a raw payload onto an Event. jobID comes from the request's
// addressing info (query parameter) and falls back to the identifier embedded
// in the payload; batch marks a selective-refresh delivery.
func Normalize(body Payload, jobID string, batch bool) Event {
	if jobID == "" {
		jobID = body.Metadata.ScrapeID
	}
	evt := Event{
		JobID: jobID,
		Kind:  classify(body),
		Batch: batch,
	}
	if evt.Kind == KindFailed {
		evt.ErrorText = errorText(body.Error)
		return evt
	}
	evt.Pages = normalizePages(body.Data)
	return evt
}

func classify(body Payload) Kind {
	explicitFailure := body.Success != nil && !*body.Success
	switch {
	case explicitFailure || failedTypes[body.Type] || hasError(body.Error):
		return KindFailed
	case startedTypes[body.Type]:
		return KindStarted
	case pageTypes[body.Type]:
		return KindPage
	case completedTypes[body.Type] || body.Status == "completed":
		return KindCompleted
	default:
		return KindUnknown
	}
}

func hasError(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && string(trimmed) != "null" && string(trimmed) != `""`
}

// errorText renders the error field, which may be a bare string or an object.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

// normalizePages accepts a bare page object, a list of pages, or a wrapper
// object with a nested "data" field, and keeps only entries with content.
func normalizePages(raw json.RawMessage) []PagePayload {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil
	}

	var list []PagePayload
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil
		}
	case '{':
		// A wrapper {data: ...} nests the real payload one level down.
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err == nil && len(bytes.TrimSpace(wrapper.Data)) > 0 &&
			!strings.EqualFold(string(bytes.TrimSpace(wrapper.Data)), "null") {
			return normalizePages(wrapper.Data)
		}
		var single PagePayload
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil
		}
		list = []PagePayload{single}
	default:
		return nil
	}

	kept := list[:0]
	for _, p := range list {
		if p.HasContent() {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}
