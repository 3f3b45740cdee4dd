package handlers

import (
	"net/http"

	"reconciler/internal/middleware"
	"reconciler/internal/websocket"
)

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePage(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// WSMatches streams match.created events for the authenticated operator.
func (h *Handler) WSMatches(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	websocket.ServeWS(w, r, h.hub, operatorID)
}
