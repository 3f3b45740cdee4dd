package handlers

import (
	"net/http"
	"strings"

	"reconciler/internal/middleware"
	"reconciler/internal/services"
)

// allOperators selects the aggregate report across every operator.
const allOperators = "all"

// Stats reports metrics for the caller by default. Reports for another
// operator, or the aggregate, require admin rights.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("employee_id"))
	if target == "" {
		target = operatorID
	}
	if target != operatorID {
		isAdmin, err := h.operators.IsAdmin(r.Context(), operatorID)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		if !isAdmin {
			respondError(w, http.StatusForbidden, "admin privileges required")
			return
		}
	}
	if target == allOperators {
		target = ""
	}
	report, err := h.service.ComputeMetrics(r.Context(), services.MetricsRequest{OperatorID: target, From: from, To: to})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
