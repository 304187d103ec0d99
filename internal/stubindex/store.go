// Package stubindex is an in-memory search index that executes index batches
// the way the real service does. It backs the tests, the demo server and the
// CLI's dry runs.
package stubindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/indexing"
)

const (
	MsgDocumentNotFound = "Document not found."
	MsgKeyMissing       = "Document key cannot be missing or empty."
)

// DeletePolicy decides the result of deleting a key that is not stored.
type DeletePolicy int

const (
	// DeleteMissingSucceeds reports success, as the hosted service does.
	DeleteMissingSucceeds DeletePolicy = iota
	// DeleteMissingFails reports a 404 "Document not found." result.
	DeleteMissingFails
)

func (p DeletePolicy) String() string {
	if p == DeleteMissingFails {
		return "fail"
	}
	return "succeed"
}

func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch s {
	case "", "succeed":
		return DeleteMissingSucceeds, nil
	case "fail":
		return DeleteMissingFails, nil
	}
	return 0, fmt.Errorf("unknown delete policy %q", s)
}

type injected struct {
	statusCode int
	message    string
}

// Store holds the documents of one index, keyed by the value of keyField.
type Store struct {
	mu           sync.RWMutex
	name         string
	keyField     string
	docs         map[string]*document.Document
	failures     map[string][]injected
	deletePolicy DeletePolicy
	logger       *slog.Logger
}

type Option func(*Store)

func WithDeletePolicy(p DeletePolicy) Option {
	return func(s *Store) { s.deletePolicy = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(name, keyField string, opts ...Option) *Store {
	s := &Store{
		name:     name,
		keyField: keyField,
		docs:     make(map[string]*document.Document),
		failures: make(map[string][]injected),
		logger:   slog.Default().With("component", "stub-index", "index", name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Name() string     { return s.name }
func (s *Store) KeyField() string { return s.keyField }

// Get returns a copy of the stored document.
func (s *Store) Get(key string) (*document.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// FailNext makes the next action on key fail with the given result instead
// of being applied. Calls queue up.
func (s *Store) FailNext(key string, statusCode int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.failures[key], injected{statusCode: statusCode, message: message})
}

// RequestError is a rejection of the whole request.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("stub index: %d %s", e.StatusCode, e.Message)
}

// Apply executes actions in order and returns the response status code with
// one result per action. A missing key anywhere rejects the request before
// any action is applied.
func (s *Store) Apply(actions []indexing.WireAction) (int, []indexing.IndexingResult, error) {
	keys := make([]string, len(actions))
	for i, a := range actions {
		v, ok := a.Document.Get(s.keyField)
		key, isString := v.AsString()
		if !ok || !isString || key == "" {
			return http.StatusBadRequest, nil, &RequestError{StatusCode: http.StatusBadRequest, Message: MsgKeyMissing}
		}
		keys[i] = key
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	status := http.StatusOK
	results := make([]indexing.IndexingResult, len(actions))
	for i, a := range actions {
		r := s.apply(a, keys[i])
		if !r.Succeeded {
			status = http.StatusMultiStatus
		}
		results[i] = r
	}
	s.logger.Debug("batch applied", "actions", len(actions), "status_code", status)
	return status, results, nil
}

func (s *Store) apply(a indexing.WireAction, key string) indexing.IndexingResult {
	if q := s.failures[key]; len(q) > 0 {
		s.failures[key] = q[1:]
		if len(s.failures[key]) == 0 {
			delete(s.failures, key)
		}
		return indexing.Failed(key, q[0].statusCode, q[0].message)
	}

	stored, exists := s.docs[key]
	switch a.Type {
	case indexing.Upload:
		s.docs[key] = upload(a.Document)
		return created(key, exists)
	case indexing.Merge:
		if !exists {
			return indexing.Failed(key, http.StatusNotFound, MsgDocumentNotFound)
		}
		merge(stored, a.Document)
		return indexing.Succeeded(key, http.StatusOK)
	case indexing.MergeOrUpload:
		if !exists {
			s.docs[key] = upload(a.Document)
			return created(key, false)
		}
		merge(stored, a.Document)
		return indexing.Succeeded(key, http.StatusOK)
	case indexing.Delete:
		if !exists && s.deletePolicy == DeleteMissingFails {
			return indexing.Failed(key, http.StatusNotFound, MsgDocumentNotFound)
		}
		delete(s.docs, key)
		return indexing.Succeeded(key, http.StatusOK)
	}
	return indexing.Failed(key, http.StatusBadRequest, fmt.Sprintf("unsupported action %s", a.Type))
}

func created(key string, existed bool) indexing.IndexingResult {
	if existed {
		return indexing.Succeeded(key, http.StatusOK)
	}
	return indexing.Succeeded(key, http.StatusCreated)
}

// upload stores a copy with null fields dropped, so a null reads back as
// absent just like an omitted field.
func upload(doc *document.Document) *document.Document {
	out := document.New()
	for name, v := range doc.All() {
		if !v.IsNull() {
			out.Set(name, v)
		}
	}
	return out
}

// merge overwrites the fields present in patch, clears fields set to null and
// replaces arrays wholesale.
func merge(stored, patch *document.Document) {
	for name, v := range patch.All() {
		if v.IsNull() {
			stored.Remove(name)
			continue
		}
		stored.Set(name, v)
	}
}

// Transport executes batches against the store in process.
func (s *Store) Transport() indexing.Transport {
	return indexing.TransportFunc(func(ctx context.Context, batch *indexing.Batch) (*indexing.Response, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		actions := make([]indexing.WireAction, batch.Len())
		for i, a := range batch.Actions() {
			actions[i] = indexing.WireAction{Type: a.Type(), Document: a.Document()}
		}
		status, results, err := s.Apply(actions)
		if err != nil {
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				return &indexing.Response{StatusCode: reqErr.StatusCode, Message: reqErr.Message}, nil
			}
			return nil, err
		}
		return &indexing.Response{StatusCode: status, Results: results}, nil
	})
}
