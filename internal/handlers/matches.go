package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"reconciler/internal/middleware"
	"reconciler/internal/reconcile"
	"reconciler/internal/validator"
)

func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	filter, err := matchFilter(r, operatorID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	matches, err := h.service.ListMatches(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

type manualMatchRequest struct {
	P2PTransactionID  string `json:"p2p_transaction_id"`
	GateTransactionID string `json:"gate_transaction_id"`
}

func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req manualMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	p2pID := strings.TrimSpace(req.P2PTransactionID)
	gateID := strings.TrimSpace(req.GateTransactionID)
	if err := validator.ValidateTransactionID("p2p_transaction_id", p2pID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if err := validator.ValidateTransactionID("gate_transaction_id", gateID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	match, err := h.service.CreateManualMatch(r.Context(), operatorID, p2pID, gateID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, match)
}

type autoMatchRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// AutoMatch runs automatic matching over an explicit window. Without a
// body it covers the last day.
func (h *Handler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	var req autoMatchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	end := time.Now().UTC()
	start := end.Add(-h.cfg.Scheduler.Lookback)
	if from, err := parseTime("from", req.From, false); err != nil {
		h.writeServiceError(w, r, err)
		return
	} else if from != nil {
		start = *from
	}
	if to, err := parseTime("to", req.To, true); err != nil {
		h.writeServiceError(w, r, err)
		return
	} else if to != nil {
		end = *to
	}
	if end.Before(start) {
		h.writeServiceError(w, r, reconcile.Invalid("date_range", "start must not be after end"))
		return
	}
	result, err := h.service.MatchAutomatically(r.Context(), start, end)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
