package services

import (
	"context"
	"sync"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
)

// SessionRegistry keeps one manual reconciliation workflow per operator.
// Sessions are in-memory only; two operators never block each other and
// conflicts surface at commit time from the match store.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]reconcile.Workflow
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]reconcile.Workflow)}
}

func (r *SessionRegistry) Get(operatorID string) reconcile.Workflow {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.sessions[operatorID]; ok {
		return w
	}
	return reconcile.NewWorkflow()
}

// Update applies fn to the operator's workflow and stores the result unless
// fn fails.
func (r *SessionRegistry) Update(operatorID string, fn func(reconcile.Workflow) (reconcile.Workflow, error)) (reconcile.Workflow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[operatorID]
	if !ok {
		current = reconcile.NewWorkflow()
	}
	next, err := fn(current)
	if err != nil {
		return current, err
	}
	r.store(operatorID, next)
	return next, nil
}

// Swap replaces the workflow only if it still equals expected, so a slow
// commit cannot overwrite selections made meanwhile.
func (r *SessionRegistry) Swap(operatorID string, expected, next reconcile.Workflow) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[operatorID]
	if !ok {
		current = reconcile.NewWorkflow()
	}
	if !sameWorkflow(current, expected) {
		return false
	}
	r.store(operatorID, next)
	return true
}

func (r *SessionRegistry) store(operatorID string, w reconcile.Workflow) {
	if w.Phase == reconcile.PhaseIdle {
		delete(r.sessions, operatorID)
		return
	}
	r.sessions[operatorID] = w
}

func sameWorkflow(a, b reconcile.Workflow) bool {
	return a.Phase == b.Phase && sameSelection(a.Source, b.Source) && sameSelection(a.Target, b.Target)
}

func sameSelection(a, b *reconcile.Selection) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *ReconciliationService) Session(operatorID string) reconcile.Workflow {
	return s.sessions.Get(operatorID)
}

func (s *ReconciliationService) SelectSource(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error) {
	current := s.sessions.Get(operatorID)
	if _, err := current.SelectSource(sel); err != nil {
		return current, err
	}
	if err := s.checkSelectable(ctx, operatorID, sel); err != nil {
		return s.sessions.Get(operatorID), err
	}
	return s.sessions.Update(operatorID, func(w reconcile.Workflow) (reconcile.Workflow, error) {
		return w.SelectSource(sel)
	})
}

func (s *ReconciliationService) SelectTarget(ctx context.Context, operatorID string, sel reconcile.Selection) (reconcile.Workflow, error) {
	current := s.sessions.Get(operatorID)
	if _, err := current.SelectTarget(sel); err != nil {
		return current, err
	}
	if err := s.checkSelectable(ctx, operatorID, sel); err != nil {
		return current, err
	}
	return s.sessions.Update(operatorID, func(w reconcile.Workflow) (reconcile.Workflow, error) {
		return w.SelectTarget(sel)
	})
}

// Commit persists the selected pair and moves the workflow according to
// the outcome: idle on success, back to the selected source when the
// target was taken meanwhile.
func (s *ReconciliationService) Commit(ctx context.Context, operatorID string) (models.TransactionMatch, reconcile.Workflow, error) {
	current := s.sessions.Get(operatorID)
	p2pID, gateID, err := current.Pair()
	if err != nil {
		return models.TransactionMatch{}, current, err
	}
	match, err := s.CreateManualMatch(ctx, operatorID, p2pID, gateID)
	next := current.Resolve(err)
	if !s.sessions.Swap(operatorID, current, next) {
		next = s.sessions.Get(operatorID)
	}
	return match, next, err
}

func (s *ReconciliationService) CancelSession(operatorID string) reconcile.Workflow {
	next, _ := s.sessions.Update(operatorID, func(w reconcile.Workflow) (reconcile.Workflow, error) {
		return w.Cancel(), nil
	})
	return next
}

// checkSelectable rejects rows that do not exist, belong to someone else
// or are already matched.
func (s *ReconciliationService) checkSelectable(ctx context.Context, operatorID string, sel reconcile.Selection) error {
	var ownerID string
	switch sel.Side {
	case reconcile.SideP2P:
		trade, err := s.p2pStore.GetByID(ctx, sel.TransactionID)
		if err != nil {
			return err
		}
		ownerID = trade.UserID
	case reconcile.SideGate:
		payout, err := s.gateStore.GetByID(ctx, sel.TransactionID)
		if err != nil {
			return err
		}
		ownerID = payout.UserID
	default:
		return reconcile.Invalid("side", "must be p2p or gate")
	}
	if err := s.authorize(ctx, operatorID, ownerID); err != nil {
		return err
	}
	matched, err := s.matches.IsMatched(ctx, sel.Side, sel.TransactionID)
	if err != nil {
		return err
	}
	if matched {
		return reconcile.AlreadyMatched(sel.Side, sel.TransactionID)
	}
	return nil
}
