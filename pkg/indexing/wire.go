package indexing

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
)

// ActionField carries the write mode inside each encoded document.
const ActionField = "@search.action"

// MarshalJSON encodes the action as its document with the mode prepended:
// {"@search.action":"merge","hotelId":"3",...}.
func (a Action) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := a.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (a Action) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	if err := document.EncodeField(buf, ActionField, document.String(a.typ.String())); err != nil {
		return err
	}
	for name, v := range a.doc.All() {
		buf.WriteByte(',')
		if err := document.EncodeField(buf, name, v); err != nil {
			return fmt.Errorf("action %s: %w", a, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// MarshalJSON encodes the request body {"value":[action,...]}.
func (b *Batch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"value":[`)
	for i, a := range b.actions {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := a.encode(&buf); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

// WireAction is a decoded action that has not been validated. Servers use it
// to report invalid actions themselves.
type WireAction struct {
	Type     ActionType
	Document *document.Document
}

// DecodeWireAction splits an encoded action into its mode and document.
func DecodeWireAction(raw []byte) (WireAction, error) {
	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return WireAction{}, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	wa := WireAction{Type: Upload, Document: &doc}
	if v, ok := doc.Get(ActionField); ok {
		name, ok := v.AsString()
		if !ok {
			return WireAction{}, fmt.Errorf("%w: %s must be a string", apperrors.ErrInvalidInput, ActionField)
		}
		typ, err := ParseActionType(name)
		if err != nil {
			return WireAction{}, err
		}
		wa.Type = typ
		doc.Remove(ActionField)
	}
	return wa, nil
}

// DecodeWireBatch decodes a request body into unvalidated actions.
func DecodeWireBatch(data []byte) ([]WireAction, error) {
	var body struct {
		Value []json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	out := make([]WireAction, len(body.Value))
	for i, raw := range body.Value {
		wa, err := DecodeWireAction(raw)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out[i] = wa
	}
	return out, nil
}

// DecodeAction decodes and validates one encoded action.
func DecodeAction(raw []byte, keyField string) (Action, error) {
	wa, err := DecodeWireAction(raw)
	if err != nil {
		return Action{}, err
	}
	return NewAction(wa.Type, keyField, wa.Document)
}

// ResultsBody is the response body of a 200 or 207.
type ResultsBody struct {
	Value []IndexingResult `json:"value"`
}

// ErrorBody is the response body of a rejected request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
