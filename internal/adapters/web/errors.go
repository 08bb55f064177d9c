package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"mrp-engine/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetails(w, r, message, code, status, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, message, code string, status int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps typed engine errors to HTTP statuses. Anything
// unrecognized becomes a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound     *core.NotFoundError
		circular     *core.CircularBOMError
		insufficient *core.InsufficientStockError
		transition   *core.InvalidStatusTransitionError
		syncGap      *core.SynchronizationGapError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.As(err, &circular):
		writeError(w, r, err.Error(), "CIRCULAR_BOM", http.StatusUnprocessableEntity)
	case errors.As(err, &insufficient):
		writeErrorDetails(w, r, err.Error(), "INSUFFICIENT_STOCK", http.StatusConflict, insufficient.Shortfalls)
	case errors.As(err, &transition):
		writeError(w, r, err.Error(), "INVALID_TRANSITION", http.StatusConflict)
	case errors.As(err, &syncGap):
		writeError(w, r, err.Error(), "SYNC_GAP", http.StatusConflict)
	default:
		writeError(w, r, err.Error(), "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
