package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webagent/webagent/internal/ingest"
)

func TestPlanForFailureAlwaysWins(t *testing.T) {
	t.Parallel()

	evt := Event{Kind: KindFailed, ErrorText: "boom"}
	for _, status := range []ingest.JobStatus{
		ingest.JobStatusPending,
		ingest.JobStatusProcessing,
		ingest.JobStatusCompleted,
		ingest.JobStatusFailed,
	} {
		plan := PlanFor(status, evt)
		require.True(t, plan.Fail, "status %s", status)
		require.False(t, plan.Skip)
	}
}

func TestPlanForCompletedJobSkipsNonBatch(t *testing.T) {
	t.Parallel()

	page := Event{Kind: KindPage, Pages: []PagePayload{{Markdown: "# A"}}}
	require.True(t, PlanFor(ingest.JobStatusCompleted, page).Skip)

	done := Event{Kind: KindCompleted}
	require.True(t, PlanFor(ingest.JobStatusCompleted, done).Skip)

	started := Event{Kind: KindStarted}
	require.True(t, PlanFor(ingest.JobStatusCompleted, started).Skip)
}

func TestPlanForBatchBypassesCompletedGuard(t *testing.T) {
	t.Parallel()

	page := Event{Kind: KindPage, Batch: true, Pages: []PagePayload{{Markdown: "# A"}}}
	plan := PlanFor(ingest.JobStatusCompleted, page)
	require.False(t, plan.Skip)
	require.True(t, plan.ProcessPages)

	done := Event{Kind: KindCompleted, Batch: true}
	plan = PlanFor(ingest.JobStatusCompleted, done)
	require.False(t, plan.Skip)
	require.True(t, plan.Complete)
}

func TestPlanForLifecycle(t *testing.T) {
	t.Parallel()

	plan := PlanFor(ingest.JobStatusPending, Event{Kind: KindStarted})
	require.True(t, plan.MarkCrawling)
	require.False(t, plan.ProcessPages)

	pages := []PagePayload{{Markdown: "# A"}}
	plan = PlanFor(ingest.JobStatusProcessing, Event{Kind: KindPage, Pages: pages})
	require.True(t, plan.ProcessPages)
	require.False(t, plan.Complete)

	plan = PlanFor(ingest.JobStatusProcessing, Event{Kind: KindCompleted, Pages: pages})
	require.True(t, plan.ProcessPages)
	require.True(t, plan.Complete)

	// Completion without trailing pages still finalizes.
	plan = PlanFor(ingest.JobStatusProcessing, Event{Kind: KindCompleted})
	require.False(t, plan.ProcessPages)
	require.True(t, plan.Complete)

	// Page events without content do nothing.
	plan = PlanFor(ingest.JobStatusProcessing, Event{Kind: KindPage})
	require.False(t, plan.ProcessPages)

	// Unknown events carrying data do not trigger processing.
	plan = PlanFor(ingest.JobStatusProcessing, Event{Kind: KindUnknown, Pages: pages})
	require.False(t, plan.ProcessPages)
	require.False(t, plan.Complete)
}
