package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/metrics"
)

// SubmitFunc submits one batch; (*indexing.Client).Index satisfies it.
type SubmitFunc func(ctx context.Context, batch *indexing.Batch) (*indexing.DocumentIndexResult, error)

// PartialOutcome is the final state of a batch after RetryPartial.
type PartialOutcome struct {
	Attempts int
	// Results holds the latest result of every action of the original batch,
	// at the action's original position.
	Results []indexing.IndexingResult
	// Remaining holds the actions that still failed when RetryPartial gave up;
	// it is nil on success.
	Remaining *indexing.Batch
}

// Failed returns the final results that did not succeed.
func (o *PartialOutcome) Failed() []indexing.IndexingResult {
	var failed []indexing.IndexingResult
	for _, r := range o.Results {
		if !r.Succeeded {
			failed = append(failed, r)
		}
	}
	return failed
}

// RetryPartial submits batch and, while the response is a partial failure,
// resubmits only the failed actions after a backoff. A request error that is
// not terminal resubmits the same pending actions. Construction errors,
// terminal request errors and result mismatches stop immediately.
//
// The returned error is nil only when every action of batch has succeeded.
// The outcome is always returned; an action that never got an answer keeps a
// zero result.
func RetryPartial(ctx context.Context, cfg RetryConfig, m *metrics.Metrics, batch *indexing.Batch, submit SubmitFunc) (*PartialOutcome, error) {
	cfg = cfg.withDefaults()
	logger := slog.Default().With("component", "retry-partial")

	out := &PartialOutcome{Results: make([]indexing.IndexingResult, batch.Len())}
	// positions maps each action of pending to its index in batch.
	positions := make([]int, batch.Len())
	for i := range positions {
		positions[i] = i
	}
	pending := batch
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		out.Attempts = attempt
		res, err := submit(ctx, pending)
		if err == nil {
			for i, r := range res.Results {
				out.Results[positions[i]] = r
			}
			if attempt > 1 {
				logger.Info("batch completed after retry", "attempt", attempt, "actions", batch.Len())
			}
			return out, nil
		}
		lastErr = err

		var pf *indexing.PartialFailureError
		var reqErr *indexing.RequestError
		switch {
		case errors.As(err, &pf):
			retry, rerr := pf.RetryActions()
			if rerr != nil {
				return out, rerr
			}
			next := make([]int, 0, retry.Len())
			for i, r := range pf.Results {
				out.Results[positions[i]] = r
				if !r.Succeeded {
					next = append(next, positions[i])
				}
			}
			positions, pending = next, retry
			m.ObserveRetry(retry.Len())
			if retry.Len() == 0 {
				// Every result reported success on a 207; nothing to resend.
				return out, nil
			}
		case errors.As(err, &reqErr):
			if reqErr.Terminal() || errors.Is(err, apperrors.ErrResultMismatch) || !cfg.retryable(err) {
				out.Remaining = pending
				return out, err
			}
		default:
			out.Remaining = pending
			return out, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		delay := computeDelay(attempt, cfg)
		logger.Warn("batch incomplete, resubmitting",
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"pending", pending.Len(),
			"next_delay", delay,
			"error", err,
		)
		if err := sleep(ctx, delay); err != nil {
			out.Remaining = pending
			return out, fmt.Errorf("retry aborted during backoff: %w", err)
		}
	}
	out.Remaining = pending
	return out, fmt.Errorf("batch still incomplete after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
