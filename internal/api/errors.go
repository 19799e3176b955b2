package api

import (
	"errors"
	"net/http"

	"github.com/studybuddy/studybuddy-api/internal/queue"
	"github.com/studybuddy/studybuddy-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes
// without leaking internal error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	case errors.Is(err, queue.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	case errors.Is(err, queue.ErrExternalService),
		errors.Is(err, queue.ErrTransientIO):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for the
// error.
func GetSafeErrorMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrNoteNotFound):
		return "Note not found"
	case errors.Is(err, store.ErrQuizNotFound):
		return "Quiz not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"
	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"
	case errors.Is(err, queue.ErrValidation):
		return "Invalid request"
	case errors.Is(err, queue.ErrExternalService),
		errors.Is(err, queue.ErrTransientIO):
		return "Service temporarily unavailable, please retry"
	default:
		return "An unexpected error occurred"
	}
}
