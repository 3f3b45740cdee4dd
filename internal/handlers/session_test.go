package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
)

func TestSelectSourceReturnsSession(t *testing.T) {
	handler := newTestHandler(stubService{}, stubOperatorStore{}, stubAuditStore{})
	rr := serveWithAuth(t, handler, http.MethodPost, "/session/source", `{"side":"p2p","transaction_id":"P1"}`, "op-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Phase != reconcile.PhaseSourceSelected || resp.Session.Source.TransactionID != "P1" {
		t.Fatalf("unexpected session %+v", resp.Session)
	}
	if len(resp.Attachable) != 1 || resp.Attachable[0] != reconcile.SideGate {
		t.Fatalf("expected only gate rows to be attachable, got %v", resp.Attachable)
	}
}

func TestSelectTargetSameSideIsInvalidState(t *testing.T) {
	source, _ := reconcile.NewWorkflow().SelectSource(reconcile.Selection{Side: reconcile.SideP2P, TransactionID: "P1"})
	handler := newTestHandler(stubService{
		selectTargetFn: func(_ context.Context, _ string, sel reconcile.Selection) (reconcile.Workflow, error) {
			_, err := source.SelectTarget(sel)
			return source, err
		},
	}, stubOperatorStore{}, stubAuditStore{})

	rr := serveWithAuth(t, handler, http.MethodPost, "/session/target", `{"side":"p2p","transaction_id":"P2"}`, "op-1")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "invalid_state" || resp.Session.Phase != reconcile.PhaseSourceSelected {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCommitConflictKeepsSource(t *testing.T) {
	source, _ := reconcile.NewWorkflow().SelectSource(reconcile.Selection{Side: reconcile.SideP2P, TransactionID: "P1"})
	handler := newTestHandler(stubService{
		commitFn: func(context.Context, string) (models.TransactionMatch, reconcile.Workflow, error) {
			return models.TransactionMatch{}, source, reconcile.AlreadyMatched(reconcile.SideGate, "G1")
		},
	}, stubOperatorStore{}, stubAuditStore{})

	rr := serveWithAuth(t, handler, http.MethodPost, "/session/commit", "", "op-1")
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "already_matched" || resp.Session.Source == nil || resp.Session.Target != nil {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestCommitSuccess(t *testing.T) {
	handler := newTestHandler(stubService{
		commitFn: func(_ context.Context, operatorID string) (models.TransactionMatch, reconcile.Workflow, error) {
			return models.TransactionMatch{ID: "m-1", UserID: operatorID}, reconcile.NewWorkflow(), nil
		},
	}, stubOperatorStore{}, stubAuditStore{})

	rr := serveWithAuth(t, handler, http.MethodPost, "/session/commit", "", "op-1")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Match == nil || resp.Match.ID != "m-1" || resp.Session.Phase != reconcile.PhaseIdle {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetAndCancelSession(t *testing.T) {
	cancelled := false
	handler := newTestHandler(stubService{
		cancelFn: func(string) reconcile.Workflow {
			cancelled = true
			return reconcile.NewWorkflow()
		},
	}, stubOperatorStore{}, stubAuditStore{})

	if rr := serveWithAuth(t, handler, http.MethodGet, "/session", "", "op-1"); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr := serveWithAuth(t, handler, http.MethodPost, "/session/cancel", "", "op-1")
	if rr.Code != http.StatusOK || !cancelled {
		t.Fatalf("expected cancel to succeed, got %d cancelled=%v", rr.Code, cancelled)
	}
	var resp sessionResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Phase != reconcile.PhaseIdle || len(resp.Attachable) != 2 {
		t.Fatalf("expected an idle session with both sides attachable, got %+v", resp)
	}
}
