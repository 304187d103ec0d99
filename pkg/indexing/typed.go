package indexing

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
)

// TypedAction is an Action built from a record of type T. The embedded Action
// carries the converted document that goes on the wire.
type TypedAction[T any] struct {
	Action
	record T
}

// Record returns the record the action was built from.
func (a TypedAction[T]) Record() T { return a.record }

func newTypedAction[T any](typ ActionType, adapter *document.Adapter[T], rec T) (TypedAction[T], error) {
	doc, err := adapter.ToDocument(rec)
	if err != nil {
		return TypedAction[T]{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidAction, err)
	}
	a, err := NewAction(typ, adapter.KeyField(), doc)
	if err != nil {
		return TypedAction[T]{}, err
	}
	return TypedAction[T]{Action: a, record: rec}, nil
}

func UploadRecord[T any](adapter *document.Adapter[T], rec T) (TypedAction[T], error) {
	return newTypedAction(Upload, adapter, rec)
}

// MergeRecord merges rec. Nil fields are omitted and therefore left untouched
// on the server; fields tagged nullable are sent as null and cleared.
func MergeRecord[T any](adapter *document.Adapter[T], rec T) (TypedAction[T], error) {
	return newTypedAction(Merge, adapter, rec)
}

func MergeOrUploadRecord[T any](adapter *document.Adapter[T], rec T) (TypedAction[T], error) {
	return newTypedAction(MergeOrUpload, adapter, rec)
}

func DeleteRecord[T any](adapter *document.Adapter[T], rec T) (TypedAction[T], error) {
	return newTypedAction(Delete, adapter, rec)
}

// TypedBatch is a Batch whose actions were built from records of type T, so
// failures can be correlated back to records.
type TypedBatch[T any] struct {
	adapter *document.Adapter[T]
	actions []TypedAction[T]
	limit   int
}

// NewTypedBatch builds a typed batch limited to DefaultMaxBatchSize actions.
func NewTypedBatch[T any](adapter *document.Adapter[T], actions ...TypedAction[T]) (*TypedBatch[T], error) {
	if len(actions) == 0 {
		return nil, apperrors.ErrEmptyBatch
	}
	b := &TypedBatch[T]{adapter: adapter, limit: DefaultMaxBatchSize}
	if err := b.Append(actions...); err != nil {
		return nil, err
	}
	return b, nil
}

// UploadRecords builds a batch uploading every record.
func UploadRecords[T any](adapter *document.Adapter[T], recs ...T) (*TypedBatch[T], error) {
	return recordBatch(Upload, adapter, recs)
}

// MergeRecords builds a batch merging every record.
func MergeRecords[T any](adapter *document.Adapter[T], recs ...T) (*TypedBatch[T], error) {
	return recordBatch(Merge, adapter, recs)
}

func recordBatch[T any](typ ActionType, adapter *document.Adapter[T], recs []T) (*TypedBatch[T], error) {
	actions := make([]TypedAction[T], 0, len(recs))
	for i, rec := range recs {
		a, err := newTypedAction(typ, adapter, rec)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return NewTypedBatch(adapter, actions...)
}

func (b *TypedBatch[T]) Append(actions ...TypedAction[T]) error {
	for i, a := range actions {
		if !a.valid() {
			return fmt.Errorf("%w: action %d was not built by a constructor", apperrors.ErrInvalidAction, len(b.actions)+i)
		}
		if a.keyField != b.adapter.KeyField() {
			return fmt.Errorf("%w: action %d is keyed by %q, batch by %q",
				apperrors.ErrInvalidAction, len(b.actions)+i, a.keyField, b.adapter.KeyField())
		}
	}
	if n := len(b.actions) + len(actions); n > b.limit {
		return fmt.Errorf("%w: %d actions, limit is %d", apperrors.ErrBatchTooLarge, n, b.limit)
	}
	b.actions = append(b.actions, actions...)
	return nil
}

// Actions returns the typed actions in order. The slice is a copy.
func (b *TypedBatch[T]) Actions() []TypedAction[T] {
	out := make([]TypedAction[T], len(b.actions))
	copy(out, b.actions)
	return out
}

func (b *TypedBatch[T]) Len() int { return len(b.actions) }

func (b *TypedBatch[T]) Adapter() *document.Adapter[T] { return b.adapter }

// Dynamic returns the batch that is actually sent, with actions in the same
// positions.
func (b *TypedBatch[T]) Dynamic() *Batch {
	actions := make([]Action, len(b.actions))
	for i, a := range b.actions {
		actions[i] = a.Action
	}
	return newBatch(b.limit, actions)
}
