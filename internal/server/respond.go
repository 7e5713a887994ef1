package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/crate/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

// statusFor maps the shared error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrEmptySelection),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrStateMismatch):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrUnknownDestination):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrTransferInProgress), errors.Is(err, shared.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, shared.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
