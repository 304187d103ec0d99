package resilience

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/internal/stubindex"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
)

var fast = RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "flaky", fast, func() error {
		calls++
		if calls < 3 {
			return errors.New("unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	boom := errors.New("unavailable")
	err := Retry(context.Background(), "down", fast, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, fast.MaxAttempts, calls)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "bad", fast, func() error {
		calls++
		return Permanent(apperrors.ErrInvalidInput)
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 1, calls)

	cfg := fast
	cfg.Retryable = func(err error) bool { return !apperrors.IsConstruction(err) }
	calls = 0
	err = Retry(context.Background(), "empty", cfg, func() error {
		calls++
		return apperrors.ErrEmptyBatch
	})
	assert.ErrorIs(t, err, apperrors.ErrEmptyBatch)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}
	err := Retry(ctx, "cancelled", cfg, func() error { return errors.New("unavailable") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker_OpensAndRecovers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	cb := NewCircuitBreaker("index", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     20 * time.Millisecond,
	}, WithBreakerMetrics(m))

	boom := errors.New("connection refused")
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return boom }), boom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_IgnoresFilteredErrors(t *testing.T) {
	cb := NewCircuitBreaker("index", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, apperrors.ErrPartialFailure) },
	})
	err := cb.Execute(func() error { return apperrors.ErrPartialFailure })
	assert.ErrorIs(t, err, apperrors.ErrPartialFailure)
	assert.Equal(t, StateClosed, cb.GetState())
}

var hotels = indexing.KeyedBy("hotelId")

func hotelBatch(t *testing.T, ids ...string) *indexing.Batch {
	t.Helper()
	actions := make([]indexing.Action, len(ids))
	for i, id := range ids {
		a, err := hotels.MergeOrUpload(document.New().Set("hotelId", document.String(id)))
		require.NoError(t, err)
		actions[i] = a
	}
	batch, err := indexing.NewBatch(actions...)
	require.NoError(t, err)
	return batch
}

func TestRetryPartial_ResubmitsOnlyFailedActions(t *testing.T) {
	st := stubindex.NewStore("hotels", "hotelId")
	st.FailNext("2", http.StatusServiceUnavailable, "Service busy.")
	st.FailNext("4", http.StatusServiceUnavailable, "Service busy.")
	st.FailNext("4", http.StatusServiceUnavailable, "Service busy.")

	var sent [][]string
	client := indexing.NewClient(st.Transport())
	submit := func(ctx context.Context, b *indexing.Batch) (*indexing.DocumentIndexResult, error) {
		sent = append(sent, b.Keys())
		return client.Index(ctx, b)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	out, err := RetryPartial(context.Background(), fast, m, hotelBatch(t, "1", "2", "3", "4"), submit)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, [][]string{{"1", "2", "3", "4"}, {"2", "4"}, {"4"}}, sent)
	require.Len(t, out.Results, 4)
	for i, r := range out.Results {
		assert.True(t, r.Succeeded, "result %d", i)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, []string{
		out.Results[0].Key, out.Results[1].Key, out.Results[2].Key, out.Results[3].Key,
	})
	assert.Nil(t, out.Remaining)
	assert.Empty(t, out.Failed())
	assert.Equal(t, 4, st.Count())
}

func TestRetryPartial_ExhaustsAttempts(t *testing.T) {
	st := stubindex.NewStore("hotels", "hotelId")
	for range 10 {
		st.FailNext("2", http.StatusServiceUnavailable, "Service busy.")
	}
	client := indexing.NewClient(st.Transport())

	cfg := fast
	cfg.MaxAttempts = 2
	out, err := RetryPartial(context.Background(), cfg, nil, hotelBatch(t, "1", "2"), client.Index)
	assert.ErrorIs(t, err, apperrors.ErrPartialFailure)
	assert.Equal(t, 2, out.Attempts)
	require.NotNil(t, out.Remaining)
	assert.Equal(t, []string{"2"}, out.Remaining.Keys())
	failed := out.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "2", failed[0].Key)
	assert.True(t, out.Results[0].Succeeded)
}

func TestRetryPartial_StopsOnTerminalRequestError(t *testing.T) {
	calls := 0
	submit := func(context.Context, *indexing.Batch) (*indexing.DocumentIndexResult, error) {
		calls++
		return nil, &indexing.RequestError{StatusCode: http.StatusBadRequest, Message: "The request is invalid."}
	}
	out, err := RetryPartial(context.Background(), fast, nil, hotelBatch(t, "1"), submit)
	var reqErr *indexing.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, []string{"1"}, out.Remaining.Keys())
}

func TestRetryPartial_RetriesTransientRequestError(t *testing.T) {
	calls := 0
	submit := func(_ context.Context, b *indexing.Batch) (*indexing.DocumentIndexResult, error) {
		calls++
		if calls == 1 {
			return nil, &indexing.RequestError{StatusCode: http.StatusServiceUnavailable, Message: "busy"}
		}
		return &indexing.DocumentIndexResult{
			StatusCode: http.StatusOK,
			Results:    []indexing.IndexingResult{indexing.Succeeded("1", http.StatusOK)},
		}, nil
	}
	out, err := RetryPartial(context.Background(), fast, nil, hotelBatch(t, "1"), submit)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, out.Results[0].Succeeded)
}
