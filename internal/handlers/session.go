package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"reconciler/internal/middleware"
	"reconciler/internal/models"
	"reconciler/internal/reconcile"
)

type selectionRequest struct {
	Side          string `json:"side"`
	TransactionID string `json:"transaction_id"`
}

// sessionResponse carries the workflow plus the sides whose rows the
// dashboard should offer an attach button on.
type sessionResponse struct {
	Session    reconcile.Workflow       `json:"session"`
	Attachable []reconcile.Side         `json:"attachable"`
	Match      *models.TransactionMatch `json:"match,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Detail     string                   `json:"detail,omitempty"`
}

func newSessionResponse(session reconcile.Workflow) sessionResponse {
	resp := sessionResponse{Session: session, Attachable: []reconcile.Side{}}
	for _, side := range []reconcile.Side{reconcile.SideP2P, reconcile.SideGate} {
		if session.CanAttach(reconcile.Selection{Side: side}) {
			resp.Attachable = append(resp.Attachable, side)
		}
	}
	return resp
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(h.service.Session(operatorID)))
}

func (h *Handler) SelectSource(w http.ResponseWriter, r *http.Request) {
	h.selectRow(w, r, false)
}

func (h *Handler) SelectTarget(w http.ResponseWriter, r *http.Request) {
	h.selectRow(w, r, true)
}

func (h *Handler) selectRow(w http.ResponseWriter, r *http.Request, target bool) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	sel := reconcile.Selection{Side: reconcile.Side(strings.TrimSpace(req.Side)), TransactionID: strings.TrimSpace(req.TransactionID)}
	var (
		session reconcile.Workflow
		err     error
	)
	if target {
		session, err = h.service.SelectTarget(r.Context(), operatorID, sel)
	} else {
		session, err = h.service.SelectSource(r.Context(), operatorID, sel)
	}
	if err != nil {
		h.writeSessionError(w, r, session, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(session))
}

// Commit persists the selected pair. On a conflict the response still
// carries the session so the client can pick another target.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	match, session, err := h.service.Commit(r.Context(), operatorID)
	if err != nil {
		h.writeSessionError(w, r, session, err)
		return
	}
	resp := newSessionResponse(session)
	resp.Match = &match
	respondJSON(w, http.StatusCreated, resp)
}

func (h *Handler) CancelSession(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := middleware.OperatorIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(h.service.CancelSession(operatorID)))
}

func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, session reconcile.Workflow, err error) {
	status, body := classifyError(err)
	if status == http.StatusInternalServerError {
		h.writeServiceError(w, r, err)
		return
	}
	detail := body.Detail
	var validation *reconcile.ValidationError
	if errors.As(err, &validation) {
		detail = validation.Error()
	}
	resp := newSessionResponse(session)
	resp.Error, resp.Detail = body.Error, detail
	respondJSON(w, status, resp)
}
