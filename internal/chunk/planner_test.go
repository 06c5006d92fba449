package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webagent/webagent/internal/ingest"
)

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("abc"))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"))
}

func TestPlanBatches_Empty(t *testing.T) {
	t.Parallel()

	require.Empty(t, PlanBatches(nil, 100, 200000))
}

func TestPlanBatches_ItemCeiling(t *testing.T) {
	t.Parallel()

	chunks := makeChunks(25, 10)
	batches := PlanBatches(chunks, 10, 200000)

	require.Len(t, batches, 3)
	require.Len(t, batches[0], 10)
	require.Len(t, batches[1], 10)
	require.Len(t, batches[2], 5)
}

func TestPlanBatches_TokenCeiling(t *testing.T) {
	t.Parallel()

	// 400 bytes -> 100 tokens each; ceiling of 250 fits two per batch.
	chunks := makeChunks(5, 400)
	batches := PlanBatches(chunks, 100, 250)

	require.Len(t, batches, 3)
	for _, b := range batches[:2] {
		require.Len(t, b, 2)
	}
	require.Len(t, batches[2], 1)
}

func TestPlanBatches_OversizedChunkGetsOwnBatch(t *testing.T) {
	t.Parallel()

	chunks := []ingest.Chunk{
		{Content: strings.Repeat("a", 40)},   // 10 tokens
		{Content: strings.Repeat("b", 4000)}, // 1000 tokens, over ceiling
		{Content: strings.Repeat("c", 40)},
	}
	batches := PlanBatches(chunks, 100, 100)

	require.Len(t, batches, 3)
	require.Len(t, batches[1], 1)
	require.Equal(t, chunks[1].Content, batches[1][0].Content)
}

// Order preservation: concatenating all batches in emission order yields the
// original chunk sequence, and every batch honors both ceilings unless it is
// a singleton carrying an oversized chunk.
func TestPlanBatches_OrderAndCeilings(t *testing.T) {
	t.Parallel()

	sizes := []int{10, 4000, 90, 90, 400, 1, 4000, 30, 30, 30, 30}
	var chunks []ingest.Chunk
	for i, n := range sizes {
		chunks = append(chunks, ingest.Chunk{
			Content: strings.Repeat("x", n),
			PageID:  fmt.Sprintf("page-%d", i),
		})
	}

	const maxItems, maxTokens = 3, 120
	batches := PlanBatches(chunks, maxItems, maxTokens)

	var flattened []ingest.Chunk
	for _, b := range batches {
		require.LessOrEqual(t, len(b), maxItems)
		total := 0
		for _, c := range b {
			total += EstimateTokens(c.Content)
		}
		if len(b) > 1 {
			require.LessOrEqual(t, total, maxTokens)
		}
		flattened = append(flattened, b...)
	}
	require.Equal(t, chunks, flattened)
}

func makeChunks(n, size int) []ingest.Chunk {
	chunks := make([]ingest.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, ingest.Chunk{Content: strings.Repeat("x", size)})
	}
	return chunks
}
