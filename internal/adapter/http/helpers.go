package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/curatd/curatd/internal/domain"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/port/workflow"
	"github.com/curatd/curatd/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// requireField writes a 400 error and returns false when value is empty.
func requireField(w http.ResponseWriter, value, fieldName string) bool {
	if value == "" {
		writeError(w, http.StatusBadRequest, fieldName+" is required")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// Request validation sentinels surface to the client with their own message.
var requestValidationErrs = []error{
	content.ErrSubmitterRequired,
	content.ErrCollectionRequired,
	content.ErrPayloadRequired,
	decision.ErrReviewerRequired,
}

func validationError(err error) error {
	for _, v := range requestValidationErrs {
		if errors.Is(err, v) {
			return v
		}
	}
	return nil
}

func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	if v := validationError(err); v != nil {
		writeError(w, http.StatusBadRequest, v.Error())
		return
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource was modified by another request")
	case errors.Is(err, workflow.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, "review already decided")
	case errors.Is(err, workflow.ErrNoPendingReview):
		writeError(w, http.StatusConflict, "no review pending for this item")
	case errors.Is(err, service.ErrNotAssigned):
		writeError(w, http.StatusForbidden, "reviewer is not assigned to this item")
	case errors.Is(err, decision.ErrThresholdOrder):
		// Server-side configuration fault, not a client error.
		slog.Error("submission refused by threshold validation", "error", err)
		writeError(w, http.StatusInternalServerError, "review thresholds misconfigured")
	case strings.Contains(err.Error(), "invalid input syntax"):
		writeError(w, http.StatusBadRequest, "invalid identifier format")
	case strings.Contains(err.Error(), "unique constraint") || strings.Contains(err.Error(), "SQLSTATE 23505"):
		writeError(w, http.StatusConflict, "resource already exists")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
