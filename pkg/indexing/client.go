package indexing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
)

// Transport sends one batch and returns the server's per-action results. It
// is the only blocking step of a submission.
type Transport interface {
	Submit(ctx context.Context, batch *Batch) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, batch *Batch) (*Response, error)

func (f TransportFunc) Submit(ctx context.Context, batch *Batch) (*Response, error) {
	return f(ctx, batch)
}

// Client submits batches and classifies the responses. It never retries and
// holds no state between submissions, so it is safe for concurrent use when
// the Transport is.
type Client struct {
	transport    Transport
	logger       *slog.Logger
	metrics      *metrics.Metrics
	maxBatchSize int
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithMaxBatchSize lowers or raises the submission-time size check.
func WithMaxBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBatchSize = n
		}
	}
}

func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:    transport,
		logger:       slog.Default().With("component", "index-client"),
		maxBatchSize: DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Index submits batch as one request.
//
// It returns a DocumentIndexResult when every action succeeded. A partial
// failure is reported as *PartialFailureError, a rejected or failed request
// as *RequestError. Empty and oversized batches are rejected before the
// transport is called.
func (c *Client) Index(ctx context.Context, batch *Batch) (*DocumentIndexResult, error) {
	log := logger.Attach(ctx, c.logger)
	if err := checkSize(batch.Len(), c.maxBatchSize); err != nil {
		c.observeBatch("invalid", 0)
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.BatchSize.Observe(float64(batch.Len()))
	}

	start := time.Now()
	resp, err := c.transport.Submit(ctx, batch)
	elapsed := time.Since(start)
	if err != nil {
		c.observeBatch("failed", elapsed)
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			return nil, reqErr
		}
		log.Error("index request failed", "actions", batch.Len(), "error", err)
		return nil, &RequestError{Err: err}
	}
	if resp == nil {
		c.observeBatch("failed", elapsed)
		log.Error("index transport returned no response", "actions", batch.Len())
		return nil, &RequestError{Err: errors.New("transport returned no response")}
	}

	status := Classify(resp.StatusCode, resp.Results)
	if status == StatusFailure {
		c.observeBatch("failed", elapsed)
		log.Error("index request rejected",
			"actions", batch.Len(),
			"status_code", resp.StatusCode,
			"message", resp.Message,
		)
		return nil, &RequestError{StatusCode: resp.StatusCode, Message: resp.Message}
	}
	if len(resp.Results) != batch.Len() {
		c.observeBatch("failed", elapsed)
		return nil, &RequestError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: %d results for %d actions", apperrors.ErrResultMismatch, len(resp.Results), batch.Len()),
		}
	}
	c.observeActions(batch, resp.Results)

	if status == StatusMultiStatus {
		c.observeBatch("partial", elapsed)
		pf := &PartialFailureError{
			Status:     status,
			StatusCode: resp.StatusCode,
			Results:    resp.Results,
			Batch:      batch,
		}
		failed := pf.FailedResults()
		log.Warn("index batch partially failed",
			"actions", batch.Len(),
			"failed", len(failed),
			"status_code", resp.StatusCode,
		)
		for _, r := range failed {
			log.Debug("index action failed", "key", r.Key, "status_code", r.StatusCode, "message", r.Message())
		}
		return nil, pf
	}

	c.observeBatch("success", elapsed)
	log.Debug("index batch succeeded", "actions", batch.Len(), "elapsed", elapsed)
	return &DocumentIndexResult{StatusCode: resp.StatusCode, Results: resp.Results}, nil
}

// IndexTyped submits the dynamic form of a typed batch. A partial failure
// carries the dynamic batch; use FindFailedTypedActionsToRetry with the typed
// batch to recover records.
func IndexTyped[T any](ctx context.Context, c *Client, batch *TypedBatch[T]) (*DocumentIndexResult, error) {
	return c.Index(ctx, batch.Dynamic())
}

func (c *Client) observeBatch(outcome string, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		c.metrics.SubmitDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	}
}

func (c *Client) observeActions(batch *Batch, results []IndexingResult) {
	if c.metrics == nil {
		return
	}
	for i, a := range batch.actions {
		result := "succeeded"
		if !results[i].Succeeded {
			result = "failed"
		}
		c.metrics.ActionsTotal.WithLabelValues(a.typ.String(), result).Inc()
	}
}
