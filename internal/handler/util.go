package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/recruit-chat/internal/model"
	"github.com/capitalize-ai/recruit-chat/internal/service"
	"github.com/capitalize-ai/recruit-chat/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// decodeJSON reads a JSON request body of at most 1MB.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps a service error to an HTTP status and a message safe to
// show the caller.
func statusFor(err error) (int, string) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden, "operation not permitted"
	case errors.Is(err, service.ErrDraftingDisabled):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, service.ErrRoomSetup):
		return http.StatusInternalServerError, service.ErrRoomSetup.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeServiceError writes err using statusFor.
func writeServiceError(w http.ResponseWriter, err error) {
	status, message := statusFor(err)
	writeError(w, status, message)
}
