package chunk

import "github.com/webagent/webagent/internal/ingest"

// Default batching ceilings for the embedding provider.
const (
	DefaultMaxBatchItems  = 100
	DefaultMaxBatchTokens = 200000
)

// EstimateTokens is the rough token estimate used for batch planning:
// ceil(len/4).
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// PlanBatches partitions chunks into batches such that no batch exceeds
// maxItems entries or maxTokens estimated tokens. Chunk order is preserved
// within and across batches. A chunk whose own estimate exceeds maxTokens
// still occupies a batch of its own; it is never dropped.
func PlanBatches(chunks []ingest.Chunk, maxItems, maxTokens int) [][]ingest.Chunk {
	if maxItems <= 0 {
		maxItems = DefaultMaxBatchItems
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxBatchTokens
	}

	var batches [][]ingest.Chunk
	var current []ingest.Chunk
	currentTokens := 0

	for _, c := range chunks {
		tokens := EstimateTokens(c.Content)
		if len(current) >= maxItems || currentTokens+tokens > maxTokens {
			if len(current) > 0 {
				batches = append(batches, current)
			}
			current = nil
			currentTokens = 0
		}
		current = append(current, c)
		currentTokens += tokens
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
