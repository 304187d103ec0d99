// Package app builds the index client stack shared by the binaries from the
// loaded configuration.
package app

import (
	"errors"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/transport"
)

// Transport builds the HTTP transport for cfg.Index, guarded by a circuit
// breaker when cfg.Breaker is enabled.
func Transport(cfg *config.Config, m *metrics.Metrics) (*transport.HTTPTransport, error) {
	var opts []transport.Option
	if cfg.Breaker.Enabled {
		cb := resilience.NewCircuitBreaker("index-"+cfg.Index.Name, resilience.CircuitBreakerConfig{
			FailureThreshold:    cfg.Breaker.FailureThreshold,
			ResetTimeout:        cfg.Breaker.ResetTimeout,
			HalfOpenMaxRequests: cfg.Breaker.HalfOpenMaxRequests,
		}, resilience.WithBreakerMetrics(m))
		opts = append(opts, transport.WithBreaker(cb))
	}
	return transport.New(transport.Config{
		Endpoint:   cfg.Index.Endpoint,
		Index:      cfg.Index.Name,
		APIKey:     cfg.Index.APIKey,
		APIVersion: cfg.Index.APIVersion,
		Timeout:    cfg.Index.Timeout,
	}, opts...)
}

// Client wraps t in an index client bounded by cfg.Index.MaxBatchSize.
func Client(cfg *config.Config, t indexing.Transport, m *metrics.Metrics) *indexing.Client {
	return indexing.NewClient(t,
		indexing.WithMetrics(m),
		indexing.WithMaxBatchSize(cfg.Index.MaxBatchSize),
	)
}

// Retry converts cfg.Retry. Construction errors and open circuits are not
// retried.
func Retry(cfg *config.Config) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialDelay:   cfg.Retry.InitialDelay,
		MaxDelay:       cfg.Retry.MaxDelay,
		Multiplier:     cfg.Retry.Multiplier,
		JitterFraction: cfg.Retry.JitterFraction,
		Retryable: func(err error) bool {
			return !apperrors.IsConstruction(err) && !errors.Is(err, resilience.ErrCircuitOpen)
		},
	}
}
