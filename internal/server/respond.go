package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/cortexdb/cortexdb/internal/auth"
	"github.com/cortexdb/cortexdb/internal/filter"
	"github.com/cortexdb/cortexdb/internal/schema"
	"github.com/cortexdb/cortexdb/internal/store/minio"
	"github.com/cortexdb/cortexdb/internal/store/postgres"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors onto HTTP status codes by sentinel.
// Anything unrecognised is an upstream failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, postgres.ErrNotFound), errors.Is(err, minio.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalid),
		errors.Is(err, filter.ErrInvalid),
		errors.Is(err, postgres.ErrConflict),
		errors.Is(err, auth.ErrValidation),
		errors.Is(err, auth.ErrSelfDelete):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrMissingKey),
		errors.Is(err, auth.ErrInvalidKey),
		errors.Is(err, auth.ErrKeyDisabled),
		errors.Is(err, auth.ErrKeyExpired):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrAdminRequired),
		errors.Is(err, auth.ErrDatabaseScope),
		errors.Is(err, auth.ErrReadOnly):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// serviceError translates a service failure into a response. Client errors
// carry the message; upstream failures are logged and masked.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

// decodeJSON decodes a typed request body.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}
