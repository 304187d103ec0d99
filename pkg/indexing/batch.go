package indexing

import (
	"fmt"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
)

// DefaultMaxBatchSize is the server's limit on actions per request.
const DefaultMaxBatchSize = 1000

// Batch is an ordered, append-only sequence of actions. Order is significant
// and preserved through submission and result correlation; batches are never
// deduplicated or reordered.
type Batch struct {
	actions []Action
	limit   int
}

// NewBatch builds a batch limited to DefaultMaxBatchSize actions.
func NewBatch(actions ...Action) (*Batch, error) {
	return NewBatchWithLimit(DefaultMaxBatchSize, actions...)
}

// NewBatchWithLimit builds a batch holding at most limit actions. An empty
// batch is rejected.
func NewBatchWithLimit(limit int, actions ...Action) (*Batch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: batch limit must be positive, got %d", apperrors.ErrInvalidInput, limit)
	}
	if len(actions) == 0 {
		return nil, apperrors.ErrEmptyBatch
	}
	b := &Batch{limit: limit}
	if err := b.Append(actions...); err != nil {
		return nil, err
	}
	return b, nil
}

// newBatch skips validation; retry extraction uses it to produce possibly
// empty batches.
func newBatch(limit int, actions []Action) *Batch {
	return &Batch{actions: actions, limit: limit}
}

// Append adds actions at the end. Nothing is appended if any action is invalid
// or the limit would be exceeded.
func (b *Batch) Append(actions ...Action) error {
	for i, a := range actions {
		if !a.valid() {
			return fmt.Errorf("%w: action %d was not built by a constructor", apperrors.ErrInvalidAction, len(b.actions)+i)
		}
	}
	if n := len(b.actions) + len(actions); n > b.limit {
		return fmt.Errorf("%w: %d actions, limit is %d", apperrors.ErrBatchTooLarge, n, b.limit)
	}
	b.actions = append(b.actions, actions...)
	return nil
}

// Actions returns the actions in order. The slice is a copy.
func (b *Batch) Actions() []Action {
	return slices.Clone(b.actions)
}

// Action returns the i-th action.
func (b *Batch) Action(i int) Action {
	return b.actions[i]
}

func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.actions)
}

func (b *Batch) Limit() int { return b.limit }

// Keys returns the key of each action, in order. Keys may repeat.
func (b *Batch) Keys() []string {
	keys := make([]string, len(b.actions))
	for i, a := range b.actions {
		keys[i] = a.key
	}
	return keys
}

// Validate re-checks the size rules; a batch produced by retry extraction may
// be empty.
func (b *Batch) Validate() error {
	return checkSize(b.Len(), b.limit)
}

func checkSize(n, limit int) error {
	if n == 0 {
		return apperrors.ErrEmptyBatch
	}
	if limit > 0 && n > limit {
		return fmt.Errorf("%w: %d actions, limit is %d", apperrors.ErrBatchTooLarge, n, limit)
	}
	return nil
}

// Equal reports whether both batches hold equal actions in the same order.
func (b *Batch) Equal(o *Batch) bool {
	return slices.EqualFunc(b.actions, o.actions, Action.Equal)
}
