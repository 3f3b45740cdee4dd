package reconcile

import (
	"errors"
	"strings"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseSourceSelected Phase = "source_selected"
	PhaseTargetSelected Phase = "target_selected"
)

type Selection struct {
	Side          Side   `json:"side"`
	TransactionID string `json:"transaction_id"`
}

func (s Selection) validate() error {
	if _, err := ParseSide(string(s.Side)); err != nil {
		return err
	}
	if strings.TrimSpace(s.TransactionID) == "" {
		return Invalid("transaction_id", "is required")
	}
	return nil
}

// Workflow is one operator's manual pairing in progress. Transitions return
// a new value and never touch storage.
type Workflow struct {
	Phase  Phase      `json:"phase"`
	Source *Selection `json:"source,omitempty"`
	Target *Selection `json:"target,omitempty"`
}

func NewWorkflow() Workflow {
	return Workflow{Phase: PhaseIdle}
}

func (w Workflow) SelectSource(sel Selection) (Workflow, error) {
	if w.Phase != PhaseIdle {
		return w, ErrInvalidTransition
	}
	if err := sel.validate(); err != nil {
		return w, err
	}
	return Workflow{Phase: PhaseSourceSelected, Source: &sel}, nil
}

// SelectTarget accepts a row from the side opposite the source. Picking a
// new target while one is held replaces it.
func (w Workflow) SelectTarget(sel Selection) (Workflow, error) {
	if w.Phase != PhaseSourceSelected && w.Phase != PhaseTargetSelected {
		return w, ErrInvalidTransition
	}
	if err := sel.validate(); err != nil {
		return w, err
	}
	if sel.Side == w.Source.Side {
		return w, ErrSameSide
	}
	source := *w.Source
	return Workflow{Phase: PhaseTargetSelected, Source: &source, Target: &sel}, nil
}

func (w Workflow) Cancel() Workflow {
	return NewWorkflow()
}

// Pair returns the ids to commit, ordered as (p2p, gate).
func (w Workflow) Pair() (string, string, error) {
	if w.Phase != PhaseTargetSelected {
		return "", "", ErrInvalidTransition
	}
	if w.Source.Side == SideP2P {
		return w.Source.TransactionID, w.Target.TransactionID, nil
	}
	return w.Target.TransactionID, w.Source.TransactionID, nil
}

// Resolve moves the workflow on after a commit attempt finished with err.
func (w Workflow) Resolve(err error) Workflow {
	switch {
	case err == nil:
		return NewWorkflow()
	case errors.Is(err, ErrAlreadyMatched):
		if w.Source == nil {
			return NewWorkflow()
		}
		source := *w.Source
		return Workflow{Phase: PhaseSourceSelected, Source: &source}
	case errors.Is(err, ErrTransactionNotFound):
		return NewWorkflow()
	default:
		return w
	}
}

// CanAttach reports whether the attach action on a row is enabled.
func (w Workflow) CanAttach(sel Selection) bool {
	switch w.Phase {
	case PhaseIdle:
		return true
	case PhaseSourceSelected, PhaseTargetSelected:
		return sel.Side == w.Source.Side.Opposite()
	}
	return false
}
