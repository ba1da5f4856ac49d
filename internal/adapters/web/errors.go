package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"barpos/internal/core"
)

type errorResponse struct {
	Error     string           `json:"error"`
	Code      string           `json:"code"`
	RequestID string           `json:"request_id,omitempty"`
	Items     []core.ItemError `json:"items,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps a service error to its HTTP status and error code.
// Batch failures carry the per-item breakdown so clients can point at the
// offending rows.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var batch *core.BatchError
	if errors.As(err, &batch) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(batchStatus(batch))
		_ = json.NewEncoder(w).Encode(errorResponse{
			Error:     "batch rejected",
			Code:      "BATCH_REJECTED",
			RequestID: requestIDFromContext(r.Context()),
			Items:     batch.Items,
		})
		return
	}

	code, status := classify(err)
	writeError(w, r, err.Error(), code, status)
}

func classify(err error) (string, int) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return "NOT_FOUND", http.StatusNotFound
	case errors.Is(err, core.ErrInvalidVariant):
		return "INVALID_VARIANT", http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK", http.StatusConflict
	case errors.Is(err, core.ErrOrderClosed), errors.Is(err, core.ErrAlreadyClosed):
		return "ORDER_CLOSED", http.StatusConflict
	case errors.Is(err, core.ErrPaymentInsufficient):
		return "PAYMENT_INSUFFICIENT", http.StatusPaymentRequired
	case errors.Is(err, core.ErrInvalidInput):
		return "BAD_REQUEST", http.StatusBadRequest
	case errors.Is(err, core.ErrInconsistentState):
		return "INTERNAL_ERROR", http.StatusInternalServerError
	}
	return "INTERNAL_ERROR", http.StatusInternalServerError
}

// batchStatus picks the status of the most specific item failure: stock
// conflicts beat validation problems, which beat plain bad input.
func batchStatus(batch *core.BatchError) int {
	switch {
	case errors.Is(batch, core.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(batch, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(batch, core.ErrInvalidVariant):
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
