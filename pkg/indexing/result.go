package indexing

import (
	"fmt"
	"net/http"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchbatch/pkg/errors"
)

// IndexingResult is the outcome of one action. Results come back in the same
// order as the submitted actions.
type IndexingResult struct {
	Key          string  `json:"key"`
	Succeeded    bool    `json:"status"`
	ErrorMessage *string `json:"errorMessage"`
	StatusCode   int     `json:"statusCode"`
}

// Message returns the error message, or "" for a successful action.
func (r IndexingResult) Message() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}

// Succeeded and Failed build results; the stub index and tests use them.
func Succeeded(key string, statusCode int) IndexingResult {
	return IndexingResult{Key: key, Succeeded: true, StatusCode: statusCode}
}

func Failed(key string, statusCode int, message string) IndexingResult {
	return IndexingResult{Key: key, StatusCode: statusCode, ErrorMessage: &message}
}

// Status is the aggregate outcome of one submission.
type Status int

const (
	StatusSuccess Status = iota
	StatusMultiStatus
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusMultiStatus:
		return "multi-status"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// StatusFromCode maps the transport status code alone.
func StatusFromCode(code int) Status {
	switch code {
	case http.StatusOK, http.StatusCreated:
		return StatusSuccess
	case http.StatusMultiStatus:
		return StatusMultiStatus
	default:
		return StatusFailure
	}
}

// Classify combines the status code with the per-action flags. A 207 is a
// partial failure even if every result reports success, and a success code
// with any failed result is downgraded to a partial failure.
func Classify(statusCode int, results []IndexingResult) Status {
	status := StatusFromCode(statusCode)
	if status != StatusSuccess {
		return status
	}
	for _, r := range results {
		if !r.Succeeded {
			return StatusMultiStatus
		}
	}
	return StatusSuccess
}

// Response is what a Transport returns for one batch.
type Response struct {
	StatusCode int
	Results    []IndexingResult
	// Message describes a rejected request; it is empty on 200 and 207.
	Message string
}

// DocumentIndexResult is returned when every action succeeded.
type DocumentIndexResult struct {
	StatusCode int
	Results    []IndexingResult
}

// PartialFailureError is returned when some actions of a batch failed. It
// carries the full ordered results and the batch that was sent.
type PartialFailureError struct {
	Status     Status
	StatusCode int
	Results    []IndexingResult
	Batch      *Batch
}

func (e *PartialFailureError) Error() string {
	failed := e.FailedResults()
	keys := make([]string, 0, min(len(failed), 5))
	for _, r := range failed[:min(len(failed), 5)] {
		keys = append(keys, r.Key)
	}
	suffix := ""
	if len(failed) > len(keys) {
		suffix = ", ..."
	}
	return fmt.Sprintf("%d of %d index actions failed (status %d), keys [%s%s]",
		len(failed), len(e.Results), e.StatusCode, strings.Join(keys, ", "), suffix)
}

func (e *PartialFailureError) Unwrap() error {
	return apperrors.ErrPartialFailure
}

// FailedResults returns the results with Succeeded=false, in order.
func (e *PartialFailureError) FailedResults() []IndexingResult {
	var failed []IndexingResult
	for _, r := range e.Results {
		if !r.Succeeded {
			failed = append(failed, r)
		}
	}
	return failed
}

// FindFailedActionsToRetry returns a new batch holding the actions of batch
// whose results failed, in their original order. keyField names the key in
// each action's document and is used to check alignment.
func (e *PartialFailureError) FindFailedActionsToRetry(batch *Batch, keyField string) (*Batch, error) {
	return RetryBatch(batch, e.Results, keyField)
}

// RetryActions is FindFailedActionsToRetry on the batch carried by the error.
func (e *PartialFailureError) RetryActions() (*Batch, error) {
	if e.Batch == nil {
		return nil, fmt.Errorf("%w: error carries no batch", apperrors.ErrResultMismatch)
	}
	return RetryBatch(e.Batch, e.Results, "")
}

// RequestError is returned when the whole batch was rejected or never
// reached the server. No per-action result is meaningful.
type RequestError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RequestError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode == 0 {
		return fmt.Sprintf("index request failed: %s", msg)
	}
	return fmt.Sprintf("index request failed (status %d): %s", e.StatusCode, msg)
}

func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrRequestFailed}
	}
	return []error{apperrors.ErrRequestFailed, e.Err}
}

// Terminal reports whether resubmitting the same batch cannot succeed, i.e.
// the server rejected it with a 4xx other than 408 or 429.
func (e *RequestError) Terminal() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusRequestTimeout &&
		e.StatusCode != http.StatusTooManyRequests
}
