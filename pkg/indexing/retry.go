package indexing

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
)

// RetryBatch zips batch with results index-for-index and returns a new batch
// holding exactly the actions whose result failed, in their original relative
// order and unchanged. The original batch is not modified. When nothing
// failed the returned batch is empty.
//
// keyField names the key in each action's document; "" uses the field each
// action was built with. The key is compared with the result at the same
// position to detect misaligned results, never used to look results up.
func RetryBatch(batch *Batch, results []IndexingResult, keyField string) (*Batch, error) {
	if batch == nil {
		return nil, fmt.Errorf("%w: no batch", apperrors.ErrResultMismatch)
	}
	if len(results) != batch.Len() {
		return nil, fmt.Errorf("%w: %d results for %d actions", apperrors.ErrResultMismatch, len(results), batch.Len())
	}
	var failed []Action
	for i, a := range batch.actions {
		field := keyField
		if field == "" {
			field = a.keyField
		}
		key, err := keyOf(a.doc, field)
		if err != nil {
			return nil, fmt.Errorf("%w: action %d: %v", apperrors.ErrResultMismatch, i, err)
		}
		if err := checkAligned(i, key, results[i]); err != nil {
			return nil, err
		}
		if !results[i].Succeeded {
			failed = append(failed, a)
		}
	}
	return newBatch(batch.limit, failed), nil
}

// RetryTypedBatch is RetryBatch for typed batches; key extracts the key from
// a record.
func RetryTypedBatch[T any](batch *TypedBatch[T], results []IndexingResult, key func(T) string) (*TypedBatch[T], error) {
	if batch == nil {
		return nil, fmt.Errorf("%w: no batch", apperrors.ErrResultMismatch)
	}
	if len(results) != batch.Len() {
		return nil, fmt.Errorf("%w: %d results for %d actions", apperrors.ErrResultMismatch, len(results), batch.Len())
	}
	var failed []TypedAction[T]
	for i, a := range batch.actions {
		if err := checkAligned(i, key(a.record), results[i]); err != nil {
			return nil, err
		}
		if !results[i].Succeeded {
			failed = append(failed, a)
		}
	}
	return &TypedBatch[T]{adapter: batch.adapter, actions: failed, limit: batch.limit}, nil
}

// FindFailedTypedActionsToRetry is the typed form of
// PartialFailureError.FindFailedActionsToRetry.
func FindFailedTypedActionsToRetry[T any](e *PartialFailureError, batch *TypedBatch[T], key func(T) string) (*TypedBatch[T], error) {
	return RetryTypedBatch(batch, e.Results, key)
}

func checkAligned(i int, key string, r IndexingResult) error {
	if key != r.Key {
		return fmt.Errorf("%w: action %d has key %q but result %d has key %q",
			apperrors.ErrResultMismatch, i, key, i, r.Key)
	}
	return nil
}
