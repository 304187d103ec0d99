package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/resilience"
)

var hotels = indexing.KeyedBy("hotelId")

func testConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Index.Endpoint = endpoint
	return cfg
}

func oneHotel(t *testing.T, ids ...string) *indexing.Batch {
	t.Helper()
	actions := make([]indexing.Action, len(ids))
	for i, id := range ids {
		a, err := hotels.Upload(document.New().Set("hotelId", document.String(id)))
		require.NoError(t, err)
		actions[i] = a
	}
	b, err := indexing.NewBatch(actions...)
	require.NoError(t, err)
	return b
}

func TestRetry_Retryable(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8090")
	retry := Retry(cfg)
	assert.Equal(t, cfg.Retry.MaxAttempts, retry.MaxAttempts)
	assert.Equal(t, cfg.Retry.InitialDelay, retry.InitialDelay)
	assert.Equal(t, cfg.Retry.MaxDelay, retry.MaxDelay)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"invalid action", fmt.Errorf("action 2: %w", apperrors.ErrInvalidAction), false},
		{"empty batch", apperrors.ErrEmptyBatch, false},
		{"oversized batch", apperrors.ErrBatchTooLarge, false},
		{"open circuit", &indexing.RequestError{Err: resilience.ErrCircuitOpen}, false},
		{"service unavailable", &indexing.RequestError{StatusCode: http.StatusServiceUnavailable}, true},
		{"throttled", &indexing.RequestError{StatusCode: http.StatusTooManyRequests}, true},
		{"deadline", &indexing.RequestError{Err: context.DeadlineExceeded}, true},
		{"connection reset", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.Retryable(tt.err))
		})
	}
}

func TestTransport_BreakerFollowsConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name     string
		enabled  bool
		wantOpen bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, srv.URL)
			cfg.Index.Timeout = 5 * time.Second
			cfg.Breaker.Enabled = tt.enabled
			cfg.Breaker.FailureThreshold = 2
			cfg.Breaker.ResetTimeout = time.Hour

			tr, err := Transport(cfg, metrics.NewWithRegistry(prometheus.NewRegistry()))
			require.NoError(t, err)
			batch := oneHotel(t, "1")
			for range 2 {
				resp, err := tr.Submit(context.Background(), batch)
				require.NoError(t, err)
				assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
			}
			_, err = tr.Submit(context.Background(), batch)
			assert.Equal(t, tt.wantOpen, errors.Is(err, resilience.ErrCircuitOpen))
		})
	}
}

func TestTransport_RejectsBadEndpoint(t *testing.T) {
	_, err := Transport(testConfig(t, "not a url"), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestClient_UsesConfiguredBatchLimit(t *testing.T) {
	cfg := testConfig(t, "http://localhost:8090")
	cfg.Index.MaxBatchSize = 1
	called := false
	client := Client(cfg, indexing.TransportFunc(func(context.Context, *indexing.Batch) (*indexing.Response, error) {
		called = true
		return nil, errors.New("unreachable")
	}), nil)

	_, err := client.Index(context.Background(), oneHotel(t, "1", "2"))
	assert.ErrorIs(t, err, apperrors.ErrBatchTooLarge)
	assert.False(t, called)
}
