package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/webagent/webagent/internal/progress"
)

// PrometheusSink exports scrape progress metrics via Prometheus. It owns all
// collectors for jobs started/completed/running and page/chunk counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge

	pagesStored    prometheus.Counter
	chunksEmbedded prometheus.Counter

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webagent_jobs_started_total",
			Help: "Total scrape jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webagent_jobs_completed_total",
			Help: "Total scrape jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webagent_jobs_running",
			Help: "Current number of running scrape jobs.",
		}),
		pagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webagent_progress_pages_stored_total",
			Help: "Pages persisted as reported by progress events.",
		}),
		chunksEmbedded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webagent_progress_chunks_embedded_total",
			Help: "Chunks embedded as reported by progress events.",
		}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.pagesStored,
		s.chunksEmbedded,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.finishJob(evt.JobID)
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.finishJob(evt.JobID)
	case progress.StagePageStored:
		if evt.Pages > 0 {
			s.pagesStored.Add(float64(evt.Pages))
		}
		if evt.Chunks > 0 {
			s.chunksEmbedded.Add(float64(evt.Chunks))
		}
	case progress.StageEmbedDone:
		if evt.Chunks > 0 {
			s.chunksEmbedded.Add(float64(evt.Chunks))
		}
	}
}

func (s *PrometheusSink) finishJob(id string) {
	if s.tracker.complete(id) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
