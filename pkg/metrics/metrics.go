// Package metrics defines the Prometheus collectors used by the batch client,
// the feeder and the transports, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	BatchesTotal        *prometheus.CounterVec
	ActionsTotal        *prometheus.CounterVec
	SubmitDuration      *prometheus.HistogramVec
	BatchSize           prometheus.Histogram
	RetryBatchesTotal   prometheus.Counter
	RetryActionsTotal   prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
	FeederMessagesTotal *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates the collectors and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_batches_total",
				Help: "Index batches submitted by outcome (success, partial, failed, invalid).",
			},
			[]string{"outcome"},
		),
		ActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_actions_total",
				Help: "Index actions by action type and per-action result.",
			},
			[]string{"action", "result"},
		),
		SubmitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_submit_duration_seconds",
				Help:    "Latency of one batch submission in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		BatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_batch_size",
				Help:    "Number of actions per submitted batch.",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
		),
		RetryBatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_retry_batches_total",
				Help: "Retry batches extracted from partial failures.",
			},
		),
		RetryActionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "index_retry_actions_total",
				Help: "Actions carried by extracted retry batches.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		FeederMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "feeder_messages_total",
				Help: "Feeder messages by disposition (indexed, retried, dead_lettered, invalid).",
			},
			[]string{"disposition"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests served by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.ActionsTotal,
		m.SubmitDuration,
		m.BatchSize,
		m.RetryBatchesTotal,
		m.RetryActionsTotal,
		m.CircuitBreakerState,
		m.FeederMessagesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// ObserveRetry records one extracted retry batch.
func (m *Metrics) ObserveRetry(actions int) {
	if m == nil {
		return
	}
	m.RetryBatchesTotal.Inc()
	m.RetryActionsTotal.Add(float64(actions))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the collectors of a non-default registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
