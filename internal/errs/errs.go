// Package errs defines the service-wide error taxonomy and its HTTP
// mapping. A peer being offline is never represented here: it is surfaced
// to callers as information, not failure.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound covers absent and expired resources alike; callers
	// cannot distinguish the two.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when the caller is not a participant
	// of the addressed conversation.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidInput is returned for malformed payloads, empty message
	// text, and missing identities.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownParticipant is returned when a conversation counterpart
	// is not known to the identity directory.
	ErrUnknownParticipant = errors.New("unknown participant")
)

// HTTPStatus maps a taxonomy error to a status code. Unrecognized errors
// map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnknownParticipant):
		return http.StatusNotFound
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
