package services

import (
	"context"
	"errors"
	"time"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
	"reconciler/internal/store"

	"github.com/shopspring/decimal"
)

func (s *ReconciliationService) ListMatches(ctx context.Context, filter store.MatchFilter) ([]models.MatchDetail, error) {
	return s.matches.List(ctx, filter)
}

func (s *ReconciliationService) ListUnmatchedP2P(ctx context.Context, filter store.TransactionFilter) ([]models.P2PTransaction, error) {
	filter.UnmatchedOnly = true
	return s.p2pStore.List(ctx, filter)
}

func (s *ReconciliationService) ListUnmatchedGate(ctx context.Context, filter store.TransactionFilter) ([]models.GateTransaction, error) {
	filter.UnmatchedOnly = true
	return s.gateStore.List(ctx, filter)
}

// ListUnmatched dispatches on side; the result is a []models.P2PTransaction
// or a []models.GateTransaction.
func (s *ReconciliationService) ListUnmatched(ctx context.Context, side reconcile.Side, filter store.TransactionFilter) (any, error) {
	switch side {
	case reconcile.SideP2P:
		return s.ListUnmatchedP2P(ctx, filter)
	case reconcile.SideGate:
		return s.ListUnmatchedGate(ctx, filter)
	}
	return nil, reconcile.Invalid("side", "must be p2p or gate")
}

type MetricsRequest struct {
	OperatorID string
	From       *time.Time
	To         *time.Time
}

// ComputeMetrics builds the report for one operator (or everyone when
// OperatorID is empty) over the matches whose trade or payout falls in the
// range. Salary is only reported for a single operator.
func (s *ReconciliationService) ComputeMetrics(ctx context.Context, req MetricsRequest) (reconcile.Report, error) {
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		return reconcile.Report{}, reconcile.Invalid("date_range", "start must not be after end")
	}
	details, err := s.matches.List(ctx, store.MatchFilter{From: req.From, To: req.To, UserID: req.OperatorID})
	if err != nil {
		return reconcile.Report{}, err
	}
	matched := make([]reconcile.MatchedPair, 0, len(details))
	for _, detail := range details {
		matched = append(matched, reconcile.MatchedPair{P2P: detail.P2P, Gate: detail.Gate})
	}

	spreadPairs := matched
	if s.settings.SpreadMode == reconcile.SpreadRecompute {
		spreadPairs, err = s.recomputePairs(ctx, req)
		if err != nil {
			return reconcile.Report{}, err
		}
	}
	report := reconcile.Compute(matched, spreadPairs, s.settings)

	unmatchedP2P, err := s.p2pStore.Count(ctx, store.TransactionFilter{
		From: req.From, To: req.To, UserID: req.OperatorID, CompletedOnly: true, UnmatchedOnly: true,
	})
	if err != nil {
		return reconcile.Report{}, err
	}
	unmatchedGate, err := s.gateStore.Count(ctx, store.TransactionFilter{
		From: req.From, To: req.To, UserID: req.OperatorID, ApprovedOnly: true, UnmatchedOnly: true,
	})
	if err != nil {
		return reconcile.Report{}, err
	}
	report.UnmatchedP2PCount = unmatchedP2P
	report.UnmatchedGateCount = unmatchedGate

	if req.OperatorID != "" {
		rate, err := s.commissionRate(ctx, req.OperatorID)
		if err != nil {
			return reconcile.Report{}, err
		}
		salary, effective := reconcile.Salary(report.GrossProfit, rate)
		report.Salary = decimal.NewNullDecimal(salary)
		report.SalaryRate = decimal.NewNullDecimal(effective)
	}
	return report, nil
}

// recomputePairs re-runs a permissive correlation over every eligible row
// in range, matched or not.
func (s *ReconciliationService) recomputePairs(ctx context.Context, req MetricsRequest) ([]reconcile.MatchedPair, error) {
	gates, err := s.gateStore.List(ctx, store.TransactionFilter{From: req.From, To: req.To, UserID: req.OperatorID, ApprovedOnly: true})
	if err != nil {
		return nil, err
	}
	tradeFilter := store.TransactionFilter{UserID: req.OperatorID, CompletedOnly: true}
	if req.From != nil {
		from := req.From.Add(-s.settings.Tolerance)
		tradeFilter.From = &from
	}
	if req.To != nil {
		to := req.To.Add(s.settings.Tolerance)
		tradeFilter.To = &to
	}
	trades, err := s.p2pStore.List(ctx, tradeFilter)
	if err != nil {
		return nil, err
	}
	settings := s.settings
	settings.Mode = reconcile.ModePermissive
	return reconcile.PairsFromCorrelation(reconcile.Correlate(gates, trades, settings)), nil
}

func (s *ReconciliationService) commissionRate(ctx context.Context, operatorID string) (decimal.NullDecimal, error) {
	operator, err := s.operators.GetByID(ctx, operatorID)
	if errors.Is(err, store.ErrOperatorNotFound) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return operator.CommissionRate, nil
}

// Candidates ranks unmatched opposite-side transactions of the same owner
// around the given transaction. A zero window uses the configured one.
func (s *ReconciliationService) Candidates(ctx context.Context, operatorID string, side reconcile.Side, id string, window time.Duration) ([]reconcile.Candidate, error) {
	if window <= 0 {
		window = s.settings.CandidateWindow
	}
	switch side {
	case reconcile.SideGate:
		payout, err := s.gateStore.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, operatorID, payout.UserID); err != nil {
			return nil, err
		}
		at := reconcile.GateTimestamp(payout)
		from, to := at.Add(-window), at.Add(window)
		trades, err := s.p2pStore.List(ctx, store.TransactionFilter{From: &from, To: &to, UserID: payout.UserID, UnmatchedOnly: true})
		if err != nil {
			return nil, err
		}
		return reconcile.CandidatesForGate(payout, trades, window, s.settings), nil
	case reconcile.SideP2P:
		trade, err := s.p2pStore.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.authorize(ctx, operatorID, trade.UserID); err != nil {
			return nil, err
		}
		from, to := trade.CompletedAt.Add(-window), trade.CompletedAt.Add(window)
		payouts, err := s.gateStore.List(ctx, store.TransactionFilter{From: &from, To: &to, UserID: trade.UserID, UnmatchedOnly: true})
		if err != nil {
			return nil, err
		}
		return reconcile.CandidatesForP2P(trade, payouts, window, s.settings), nil
	}
	return nil, reconcile.Invalid("side", "must be p2p or gate")
}
