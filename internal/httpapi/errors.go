package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"inferd/internal/adapter"
	"inferd/internal/catalog"
	"inferd/internal/orchestrator"
	"inferd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps the orchestration error taxonomy to HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case adapter.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable
	case adapter.IsUnsupportedOperation(err):
		return http.StatusNotImplemented
	case adapter.IsInvalidResponse(err), adapter.IsRequestFailed(err):
		return http.StatusBadGateway
	case orchestrator.IsExhausted(err):
		return http.StatusBadGateway
	case orchestrator.IsUnknownProvider(err), catalog.IsProviderNotFound(err):
		return http.StatusNotFound
	case orchestrator.IsInvalidRegistration(err):
		return http.StatusBadRequest
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// writeDispatchError writes a completion failure; exhausted dispatches carry
// the per-provider attempt record so callers see every reason, not a generic
// message.
func writeDispatchError(w http.ResponseWriter, status int, err error) {
	payload := types.ErrorResponse{Error: err.Error(), Code: status}
	if attempts := orchestrator.AttemptsOf(err); len(attempts) > 0 {
		payload.Attempts = attempts
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
