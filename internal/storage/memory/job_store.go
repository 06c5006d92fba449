// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/webagent/webagent/internal/ingest"
)

// JobStore is an in-memory ingest.JobStore. Jobs and pages survive only for
// the lifetime of the process.
type JobStore struct {
	mu    sync.RWMutex
	jobs  map[string]ingest.Job
	pages map[string][]ingest.Page
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:  make(map[string]ingest.Job),
		pages: make(map[string][]ingest.Page),
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job ingest.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (ingest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ingest.Job{}, ingest.ErrNotFound
	}
	return job, nil
}

// FindJobByURL returns the most recent job for a URL.
func (s *JobStore) FindJobByURL(_ context.Context, url string) (ingest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found bool
		best  ingest.Job
	)
	for _, job := range s.jobs {
		if job.URL != url {
			continue
		}
		if !found || job.CreatedAt.After(best.CreatedAt) {
			best = job
			found = true
		}
	}
	if !found {
		return ingest.Job{}, ingest.ErrNotFound
	}
	return best, nil
}

// ListJobs returns all jobs, newest first.
func (s *JobStore) ListJobs(context.Context) ([]ingest.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateJob applies the non-nil fields of update.
func (s *JobStore) UpdateJob(_ context.Context, jobID string, update ingest.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return ingest.ErrNotFound
	}
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Step != nil {
		job.Step = *update.Step
	}
	if update.PagesScraped != nil {
		job.PagesScraped = *update.PagesScraped
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.Metadata != nil {
		job.Metadata = update.Metadata
	}
	job.UpdatedAt = time.Now().UTC()
	s.jobs[jobID] = job
	return nil
}

// DeleteJob removes a job and its pages.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return ingest.ErrNotFound
	}
	delete(s.jobs, jobID)
	delete(s.pages, jobID)
	return nil
}

// InsertPages appends pages to their jobs.
func (s *JobStore) InsertPages(_ context.Context, pages []ingest.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range pages {
		s.pages[page.JobID] = append(s.pages[page.JobID], page)
	}
	return nil
}

// ListPages returns a job's pages in insertion order.
func (s *JobStore) ListPages(_ context.Context, jobID string) ([]ingest.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := s.pages[jobID]
	out := make([]ingest.Page, len(pages))
	copy(out, pages)
	return out, nil
}

// CountPages returns the number of stored pages for a job.
func (s *JobStore) CountPages(_ context.Context, jobID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages[jobID]), nil
}

// DeletePages removes the given pages from a job.
func (s *JobStore) DeletePages(_ context.Context, jobID string, pageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	drop := make(map[string]bool, len(pageIDs))
	for _, id := range pageIDs {
		drop[id] = true
	}
	pages := s.pages[jobID]
	kept := pages[:0]
	for _, page := range pages {
		if !drop[page.ID] {
			kept = append(kept, page)
		}
	}
	s.pages[jobID] = kept
	return nil
}
