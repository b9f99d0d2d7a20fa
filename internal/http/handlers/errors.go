package handlers

import (
	"errors"
	"net/http"

	"github.com/pinpung/pinpung-ai/internal/pkg/faults"
)

// statusForError maps service errors onto HTTP statuses. External upstream
// failures surface as 502 so callers can tell them apart from our own 500s.
func statusForError(err error) int {
	switch {
	case errors.Is(err, faults.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case faults.IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "upstream_failed"
	default:
		return "internal_error"
	}
}
