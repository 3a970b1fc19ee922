package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: bad price", models.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("get order x: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: already rejected", models.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("update: %w", models.ErrConflict), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: db down", models.ErrDependencyUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	status := WriteError(rec, "Failed to respond", fmt.Errorf("lock: %w", models.ErrConflict))

	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Failed to respond", body.Message)

	rec = httptest.NewRecorder()
	WriteError(rec, "Failed", errors.New("pq: secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
	assert.Empty(t, rec.Header().Get("Retry-After"))
}
