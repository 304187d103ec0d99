package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsConstruction(t *testing.T) {
	assert.True(t, IsConstruction(fmt.Errorf("%w: key missing", ErrInvalidAction)))
	assert.True(t, IsConstruction(ErrEmptyBatch))
	assert.True(t, IsConstruction(fmt.Errorf("building: %w", ErrBatchTooLarge)))
	assert.False(t, IsConstruction(ErrPartialFailure))
	assert.False(t, IsConstruction(nil))
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidInput, http.StatusTeapot, "custom"), http.StatusTeapot},
		{fmt.Errorf("wrapped: %w", ErrDocumentNotFound), http.StatusNotFound},
		{ErrEmptyBatch, http.StatusBadRequest},
		{ErrBatchTooLarge, http.StatusRequestEntityTooLarge},
		{ErrPartialFailure, http.StatusMultiStatus},
		{ErrTimeout, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusCode(tt.err), tt.err.Error())
	}
}

func TestAppError(t *testing.T) {
	err := Newf(ErrBatchTooLarge, http.StatusRequestEntityTooLarge, "at most %d actions", 1000)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
	assert.Equal(t, "index batch exceeds maximum size: at most 1000 actions", err.Error())
}
