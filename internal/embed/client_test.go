package embed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	calls    int
	failures int // fail this many leading calls
	dim      int
	err      error
	inputs   [][]string
}

func (p *fakeProvider) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	p.calls++
	p.inputs = append(p.inputs, append([]string(nil), texts...))
	if p.calls <= p.failures {
		err := p.err
		if err == nil {
			err = errors.New("provider unavailable")
		}
		return nil, err
	}
	dim := p.dim
	if dim == 0 {
		dim = 3
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, dim)
		vec[0] = float32(i + 1)
		out[i] = vec
	}
	return out, nil
}

func newTestClient(p *fakeProvider) (*Client, *[]time.Duration) {
	c := NewClient(p, ClientConfig{MaxAttempts: 3, BaseDelay: time.Second}, nil)
	var delays []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func TestEmbedBatch_Succeeds(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	client, _ := newTestClient(provider)

	res, err := client.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Attempts)
	require.Len(t, res.Vectors, 2)
	require.NotEmpty(t, res.Vectors[0])
	require.NotEmpty(t, res.Vectors[1])
}

// Embedding index fidelity: empty entries are filtered before the remote call
// and resolve to empty vectors at their original positions.
func TestEmbedBatch_FiltersAndRemapsEmptyInputs(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	client, _ := newTestClient(provider)

	res, err := client.EmbedBatch(context.Background(), []string{"", "alpha", "   ", "beta", ""})
	require.NoError(t, err)
	require.Len(t, res.Vectors, 5)
	require.Empty(t, res.Vectors[0])
	require.Empty(t, res.Vectors[2])
	require.Empty(t, res.Vectors[4])
	// Position 1 got the first provider vector, position 3 the second.
	require.Equal(t, float32(1), res.Vectors[1][0])
	require.Equal(t, float32(2), res.Vectors[3][0])
	require.Equal(t, [][]string{{"alpha", "beta"}}, provider.inputs)
}

func TestEmbedBatch_AllEmptyFailsImmediately(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	client, _ := newTestClient(provider)

	_, err := client.EmbedBatch(context.Background(), []string{"", "   "})
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Zero(t, provider.calls)
}

func TestEmbedBatch_RetriesWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{failures: 2}
	client, delays := newTestClient(provider)

	res, err := client.EmbedBatch(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestEmbedBatch_ExhaustedRetriesReturnEmbeddingError(t *testing.T) {
	t.Parallel()

	cause := errors.New("rate limited")
	provider := &fakeProvider{failures: 99, err: cause}
	client, delays := newTestClient(provider)

	_, err := client.EmbedBatch(context.Background(), []string{"alpha"})

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	require.Equal(t, 3, embErr.Attempts)
	require.ErrorIs(t, err, cause)
	require.Equal(t, 3, provider.calls)
	require.Len(t, *delays, 2)
}

func TestEmbedBatch_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{failures: 99}
	client := NewClient(provider, ClientConfig{MaxAttempts: 3, BaseDelay: time.Second}, nil)
	client.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	_, err := client.EmbedBatch(context.Background(), []string{"alpha"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, provider.calls)
}

func TestEmbedOne_EmptyInputNoRetry(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{}
	client, _ := newTestClient(provider)

	_, attempts, err := client.EmbedOne(context.Background(), "  \n ")
	require.ErrorIs(t, err, ErrEmptyInput)
	require.Zero(t, attempts)
	require.Zero(t, provider.calls)
}

func TestEmbedOne_ReturnsVector(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{dim: 4}
	client, _ := newTestClient(provider)

	vec, attempts, err := client.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, 1, attempts)
	require.Len(t, vec, 4)
}

func TestEmbedBatch_VectorCountMismatchIsRetried(t *testing.T) {
	t.Parallel()

	client := NewClient(shortProvider{}, ClientConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}, nil)
	client.sleep = func(context.Context, time.Duration) error { return nil }

	_, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
}

type shortProvider struct{}

func (shortProvider) CreateEmbedding(context.Context, []string) ([][]float32, error) {
	return [][]float32{{1}}, nil
}
