package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"reconciler/internal/db"
	"reconciler/internal/reconcile"
	"reconciler/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type errorBody struct {
	Error  string `json:"error"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// writeServiceError maps domain errors onto HTTP statuses. Anything it does
// not recognise is logged and reported as a 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classifyError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondJSON(w, status, body)
}

func classifyError(err error) (int, errorBody) {
	var validation *reconcile.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorBody{Error: "validation_failed", Field: validation.Field, Reason: validation.Reason}
	case errors.Is(err, reconcile.ErrAlreadyMatched):
		return http.StatusConflict, errorBody{Error: "already_matched", Detail: err.Error()}
	case errors.Is(err, reconcile.ErrTransactionNotFound):
		return http.StatusNotFound, errorBody{Error: "not_found", Detail: err.Error()}
	case errors.Is(err, reconcile.ErrInvalidTransition), errors.Is(err, reconcile.ErrSameSide):
		return http.StatusConflict, errorBody{Error: "invalid_state", Detail: err.Error()}
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: "forbidden"}
	case db.IsUniqueViolation(err):
		return http.StatusConflict, errorBody{Error: "already_matched"}
	}
	return http.StatusInternalServerError, errorBody{Error: "internal_error"}
}
