package webhook

import "github.com/webagent/webagent/internal/ingest"

// Plan is the set of effects one event should produce against a job in a
// given status. It is computed by a pure function so the idempotency and
// ordering rules can be unit-tested without any collaborator.
type Plan struct {
	// Skip short-circuits the event with an idempotent no-op response.
	Skip bool
	// Fail marks the job failed with the event's error text.
	Fail bool
	// MarkCrawling moves the job to processing/crawling.
	MarkCrawling bool
	// ProcessPages persists the event's pages and runs the embedder.
	ProcessPages bool
	// Complete finalizes the job: recompute page count, clear refresh
	// metadata, set completed status and step.
	Complete bool
}

// PlanFor decides what an event does to a job currently in status.
//
// Events may arrive out of order or be redelivered; these rules are the sole
// ordering safety net. The canonical completed-skip rule: once a job is
// completed, every non-batch event is skipped, while batch-tagged (refresh)
// deliveries always pass because a refresh starts from a still-completed job.
// Failure events are honored regardless of status so a late failure report is
// never lost.
func PlanFor(status ingest.JobStatus, evt Event) Plan {
	if evt.Kind == KindFailed {
		return Plan{Fail: true}
	}
	if status == ingest.JobStatusCompleted && !evt.Batch {
		return Plan{Skip: true}
	}
	if evt.Kind == KindStarted {
		return Plan{MarkCrawling: true}
	}

	var p Plan
	if len(evt.Pages) > 0 && (evt.Kind == KindPage || evt.Kind == KindCompleted) {
		p.ProcessPages = true
	}
	if evt.Kind == KindCompleted {
		p.Complete = true
	}
	return p
}
