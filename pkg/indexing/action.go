// Package indexing builds ordered batches of index write actions, submits
// them through a Transport, classifies the mixed-outcome response, and derives
// retry batches from partial failures.
//
// Result correlation is positional: the i-th result belongs to the i-th action
// of the submitted batch. Keys are only used to verify that alignment, so
// batches carrying the same key more than once are handled correctly.
package indexing

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
)

// ActionType is the write mode of one action.
type ActionType int

const (
	// Upload replaces the stored document, or creates it. Omitted fields end up
	// absent.
	Upload ActionType = iota
	// Merge overwrites the fields present in the document, clears fields set to
	// null and leaves omitted fields untouched. It fails if the document does
	// not exist.
	Merge
	// MergeOrUpload merges into an existing document, or uploads it.
	MergeOrUpload
	// Delete removes the keyed document. Only the key is meaningful.
	Delete
)

func (t ActionType) String() string {
	switch t {
	case Upload:
		return "upload"
	case Merge:
		return "merge"
	case MergeOrUpload:
		return "mergeOrUpload"
	case Delete:
		return "delete"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// ParseActionType maps a wire name back to an ActionType.
func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "upload":
		return Upload, nil
	case "merge":
		return Merge, nil
	case "mergeOrUpload":
		return MergeOrUpload, nil
	case "delete":
		return Delete, nil
	}
	return 0, fmt.Errorf("%w: unknown action type %q", apperrors.ErrInvalidAction, s)
}

func (t ActionType) valid() bool {
	return t >= Upload && t <= Delete
}

// Action is one write operation. Actions are immutable: the document handed
// to a constructor is copied, and Document returns a copy.
type Action struct {
	typ      ActionType
	keyField string
	key      string
	doc      *document.Document
}

// NewAction validates doc and wraps it. The key field must hold a non-empty
// string, for deletes too.
func NewAction(typ ActionType, keyField string, doc *document.Document) (Action, error) {
	if !typ.valid() {
		return Action{}, fmt.Errorf("%w: unknown action type %d", apperrors.ErrInvalidAction, int(typ))
	}
	if keyField == "" {
		return Action{}, fmt.Errorf("%w: key field name is required", apperrors.ErrInvalidAction)
	}
	if doc == nil {
		return Action{}, fmt.Errorf("%w: %s action has no document", apperrors.ErrInvalidAction, typ)
	}
	key, err := keyOf(doc, keyField)
	if err != nil {
		return Action{}, err
	}
	if doc.Has(ActionField) {
		return Action{}, fmt.Errorf("%w: key %q: field name %s is reserved", apperrors.ErrInvalidAction, key, ActionField)
	}
	if err := doc.Validate(); err != nil {
		return Action{}, fmt.Errorf("%w: key %q: %v", apperrors.ErrInvalidAction, key, err)
	}
	return Action{typ: typ, keyField: keyField, key: key, doc: doc.Clone()}, nil
}

func keyOf(doc *document.Document, keyField string) (string, error) {
	v, ok := doc.Get(keyField)
	if !ok || v.IsNull() {
		return "", fmt.Errorf("%w: document key %q cannot be missing or empty", apperrors.ErrInvalidAction, keyField)
	}
	key, ok := v.AsString()
	if !ok {
		return "", fmt.Errorf("%w: document key %q must be a string, got %s", apperrors.ErrInvalidAction, keyField, v.Kind())
	}
	if key == "" {
		return "", fmt.Errorf("%w: document key %q cannot be missing or empty", apperrors.ErrInvalidAction, keyField)
	}
	return key, nil
}

func (a Action) Type() ActionType { return a.typ }
func (a Action) KeyField() string { return a.keyField }
func (a Action) Key() string { return a.key }

// Document returns a copy of the action's document.
func (a Action) Document() *document.Document {
	if a.doc == nil {
		return nil
	}
	return a.doc.Clone()
}

// Equal reports whether both actions have the same type and equal documents.
func (a Action) Equal(o Action) bool {
	return a.typ == o.typ && a.keyField == o.keyField && a.doc.Equal(o.doc)
}

func (a Action) String() string {
	return fmt.Sprintf("%s(%s=%s)", a.typ, a.keyField, a.key)
}

func (a Action) valid() bool {
	return a.doc != nil && a.key != ""
}

// Keyed builds actions for an index whose key field is known.
type Keyed struct {
	field string
}

// KeyedBy returns a factory for actions keyed by field.
func KeyedBy(field string) Keyed {
	return Keyed{field: field}
}

func (k Keyed) KeyField() string { return k.field }

func (k Keyed) Upload(doc *document.Document) (Action, error) {
	return NewAction(Upload, k.field, doc)
}

func (k Keyed) Merge(doc *document.Document) (Action, error) {
	return NewAction(Merge, k.field, doc)
}

func (k Keyed) MergeOrUpload(doc *document.Document) (Action, error) {
	return NewAction(MergeOrUpload, k.field, doc)
}

// Delete takes the whole document; fields other than the key are sent but
// ignored by the server.
func (k Keyed) Delete(doc *document.Document) (Action, error) {
	return NewAction(Delete, k.field, doc)
}

// DeleteKey builds a delete from the key value alone.
func (k Keyed) DeleteKey(value string) (Action, error) {
	return NewAction(Delete, k.field, document.New().Set(k.field, document.String(value)))
}

// Batch wraps every document in an action of the same type.
func (k Keyed) Batch(typ ActionType, docs ...*document.Document) (*Batch, error) {
	actions := make([]Action, 0, len(docs))
	for i, doc := range docs {
		a, err := NewAction(typ, k.field, doc)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		actions = append(actions, a)
	}
	return NewBatch(actions...)
}
