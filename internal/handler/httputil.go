package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/matthewbaird/rentpulse/internal/automation"
	"github.com/matthewbaird/rentpulse/internal/pricing"
	"github.com/matthewbaird/rentpulse/internal/renter"
	"github.com/matthewbaird/rentpulse/internal/snapshot"
	"github.com/matthewbaird/rentpulse/internal/store"
)

// maxBodyBytes bounds request bodies; batch evaluations are the largest.
const maxBodyBytes = 4 << 20

// AuditInfo holds audit metadata extracted from request headers.
type AuditInfo struct {
	Actor         string
	Source        string
	CorrelationID string
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON encode error", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

// decodeJSON decodes the request body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// parseLimit reads the "limit" query parameter. Missing or non-positive
// values yield 0, which the store treats as its default.
func parseLimit(r *http.Request) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	if n > 500 {
		n = 500
	}
	return n
}

// errorToHTTP maps domain errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, err error) {
	var verr *pricing.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "INVALID_SNAPSHOT", err.Error())
	case errors.Is(err, automation.ErrInvalidRule), errors.Is(err, automation.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, renter.ErrNoDeals):
		writeError(w, http.StatusBadRequest, "NO_UNITS", err.Error())
	default:
		slog.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// parseAuditContext extracts audit metadata from request headers.
func parseAuditContext(w http.ResponseWriter, r *http.Request) (AuditInfo, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor header is required")
		return AuditInfo{}, false
	}
	source := r.Header.Get("X-Source")
	if source == "" {
		source = "user"
	}
	return AuditInfo{
		Actor:         actor,
		Source:        source,
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	}, true
}
