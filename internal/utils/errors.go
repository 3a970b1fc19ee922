package utils

import (
	"context"
	"errors"
	"net/http"

	"ms-booking/internal/models"
)

// StatusFor maps the error taxonomy onto an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrDependencyUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as an ErrorResponse. Retryable failures carry Retry-After.
func WriteError(w http.ResponseWriter, message string, err error) int {
	status := StatusFor(err)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	WriteJSON(w, status, ErrorResponse(message, detail))
	return status
}
