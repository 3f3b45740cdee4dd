package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reconciler/internal/db"
	"reconciler/internal/models"
	"reconciler/internal/notify"
	"reconciler/internal/observability"
	"reconciler/internal/reconcile"
	"reconciler/internal/store"
	"reconciler/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrForbidden = errors.New("transaction belongs to another operator")

type P2PStore interface {
	GetByID(ctx context.Context, id string) (models.P2PTransaction, error)
	List(ctx context.Context, filter store.TransactionFilter) ([]models.P2PTransaction, error)
	Count(ctx context.Context, filter store.TransactionFilter) (int, error)
	Upsert(ctx context.Context, tx store.Execer, trade models.P2PTransaction) (bool, error)
}

type GateStore interface {
	GetByID(ctx context.Context, id string) (models.GateTransaction, error)
	List(ctx context.Context, filter store.TransactionFilter) ([]models.GateTransaction, error)
	Count(ctx context.Context, filter store.TransactionFilter) (int, error)
	Upsert(ctx context.Context, tx store.Execer, payout models.GateTransaction) (bool, error)
}

type MatchStore interface {
	Create(ctx context.Context, tx store.Tx, input store.MatchInput) (models.TransactionMatch, error)
	List(ctx context.Context, filter store.MatchFilter) ([]models.MatchDetail, error)
	IsMatched(ctx context.Context, side reconcile.Side, transactionID string) (bool, error)
}

type OperatorStore interface {
	GetByID(ctx context.Context, id string) (models.Operator, error)
	IsAdmin(ctx context.Context, id string) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type MatchHub interface {
	BroadcastMatch(operatorID string, event websocket.MatchEvent)
}

type MetricsRecorder interface {
	MatchCreated(kind string)
	MatchConflict(kind string)
	AutoMatchCompleted(elapsed time.Duration)
}

// Stores groups the persistence dependencies of ReconciliationService.
type Stores struct {
	P2P       P2PStore
	Gate      GateStore
	Matches   MatchStore
	Operators OperatorStore
	Audit     AuditStore
}

type ReconciliationService struct {
	txRunner  db.TxRunner
	p2pStore  P2PStore
	gateStore GateStore
	matches   MatchStore
	operators OperatorStore
	audit     AuditStore
	hub       MatchHub
	recorder  MetricsRecorder
	notifier  notify.Notifier
	sessions  *SessionRegistry
	settings  reconcile.Settings
	logger    *slog.Logger
}

func NewReconciliationService(txRunner db.TxRunner, stores Stores, hub MatchHub, recorder MetricsRecorder, notifier notify.Notifier, settings reconcile.Settings, logger *slog.Logger) *ReconciliationService {
	return &ReconciliationService{
		txRunner:  txRunner,
		p2pStore:  stores.P2P,
		gateStore: stores.Gate,
		matches:   stores.Matches,
		operators: stores.Operators,
		audit:     stores.Audit,
		hub:       hub,
		recorder:  recorder,
		notifier:  notifier,
		sessions:  NewSessionRegistry(),
		settings:  settings,
		logger:    logger,
	}
}

func (s *ReconciliationService) Settings() reconcile.Settings {
	return s.settings
}

// AutoMatchResult summarises one MatchAutomatically run. Skipped counts
// approved gate payouts that found no trade and are left for manual review.
type AutoMatchResult struct {
	MatchesCreated int `json:"matches_created"`
	Conflicts      int `json:"conflicts"`
	Skipped        int `json:"skipped"`
}

// MatchAutomatically correlates the unmatched gate payouts approved inside
// [windowStart, windowEnd] with unmatched completed trades and persists
// every proposed pair. A pair that lost a race to a concurrent match is
// counted as a conflict and the run continues. Running it twice over the
// same window creates nothing the second time.
func (s *ReconciliationService) MatchAutomatically(ctx context.Context, windowStart, windowEnd time.Time) (AutoMatchResult, error) {
	if windowEnd.Before(windowStart) {
		return AutoMatchResult{}, reconcile.Invalid("window", "start must not be after end")
	}
	started := time.Now()
	gates, err := s.gateStore.List(ctx, store.TransactionFilter{
		From:          &windowStart,
		To:            &windowEnd,
		ApprovedOnly:  true,
		UnmatchedOnly: true,
	})
	if err != nil {
		return AutoMatchResult{}, err
	}
	tradesFrom := windowStart.Add(-s.settings.Tolerance)
	tradesTo := windowEnd.Add(s.settings.Tolerance)
	trades, err := s.p2pStore.List(ctx, store.TransactionFilter{
		From:          &tradesFrom,
		To:            &tradesTo,
		CompletedOnly: true,
		UnmatchedOnly: true,
	})
	if err != nil {
		return AutoMatchResult{}, err
	}

	pairs := reconcile.Correlate(gates, trades, s.settings)
	result := AutoMatchResult{Skipped: len(gates) - len(pairs)}
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.createMatch(ctx, "", pair.P2P.UserID, pair.P2P.ID, pair.Gate.ID, true, pair.TimeDifference)
		switch {
		case err == nil:
			result.MatchesCreated++
		case errors.Is(err, reconcile.ErrAlreadyMatched), errors.Is(err, reconcile.ErrTransactionNotFound):
			result.Conflicts++
			s.recorder.MatchConflict(observability.KindAuto)
			s.logger.Warn("auto match skipped", "p2p_id", pair.P2P.ID, "gate_id", pair.Gate.ID, "error", err)
		default:
			return result, err
		}
	}

	s.recorder.AutoMatchCompleted(time.Since(started))
	s.logger.Info("auto match completed",
		"window_start", windowStart, "window_end", windowEnd,
		"created", result.MatchesCreated, "conflicts", result.Conflicts, "skipped", result.Skipped)
	summary := notify.Summary{
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
		MatchesCreated: result.MatchesCreated,
		Conflicts:      result.Conflicts,
		Skipped:        result.Skipped,
	}
	if err := s.notifier.AutoMatchCompleted(ctx, summary); err != nil {
		s.logger.Error("auto match notification failed", "error", err)
	}
	return result, nil
}

// CreateManualMatch links a trade and a payout chosen by an operator. Both
// must belong to the same owner; admins may match on behalf of others.
func (s *ReconciliationService) CreateManualMatch(ctx context.Context, operatorID, p2pID, gateID string) (models.TransactionMatch, error) {
	if p2pID == "" {
		return models.TransactionMatch{}, reconcile.Invalid("p2p_transaction_id", "is required")
	}
	if gateID == "" {
		return models.TransactionMatch{}, reconcile.Invalid("gate_transaction_id", "is required")
	}
	trade, err := s.p2pStore.GetByID(ctx, p2pID)
	if err != nil {
		return models.TransactionMatch{}, err
	}
	payout, err := s.gateStore.GetByID(ctx, gateID)
	if err != nil {
		return models.TransactionMatch{}, err
	}
	if trade.UserID != payout.UserID {
		return models.TransactionMatch{}, reconcile.Invalid("gate_transaction_id", "belongs to a different operator than the p2p transaction")
	}
	if err := s.authorize(ctx, operatorID, trade.UserID); err != nil {
		return models.TransactionMatch{}, err
	}
	diff := reconcile.TimeDifferenceMinutes(trade.CompletedAt.Sub(reconcile.GateTimestamp(payout)))
	match, err := s.createMatch(ctx, operatorID, trade.UserID, p2pID, gateID, false, diff)
	if errors.Is(err, reconcile.ErrAlreadyMatched) {
		s.recorder.MatchConflict(observability.KindManual)
	}
	return match, err
}

func (s *ReconciliationService) createMatch(ctx context.Context, actorID, ownerID, p2pID, gateID string, auto bool, timeDifference int) (models.TransactionMatch, error) {
	input := store.MatchInput{
		ID:                uuid.NewString(),
		UserID:            ownerID,
		P2PTransactionID:  p2pID,
		GateTransactionID: gateID,
		IsAutoMatched:     auto,
		TimeDifference:    timeDifference,
	}
	action, kind := "match.manual", observability.KindManual
	if auto {
		action, kind = "match.auto", observability.KindAuto
	}
	var match models.TransactionMatch
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.matches.Create(ctx, tx, input)
		if err != nil {
			return err
		}
		match = created
		data, err := json.Marshal(map[string]any{
			"p2p_transaction_id":  p2pID,
			"gate_transaction_id": gateID,
			"time_difference":     timeDifference,
		})
		if err != nil {
			return fmt.Errorf("encode audit data: %w", err)
		}
		return s.audit.Log(ctx, tx, actorID, action, "transaction_match", input.ID, string(data))
	})
	if err != nil {
		return models.TransactionMatch{}, err
	}
	s.recorder.MatchCreated(kind)
	s.hub.BroadcastMatch(ownerID, websocket.NewMatchEvent(match))
	return match, nil
}

// authorize allows operators to act on their own transactions and admins
// on anyone's.
func (s *ReconciliationService) authorize(ctx context.Context, operatorID, ownerID string) error {
	if operatorID == ownerID {
		return nil
	}
	isAdmin, err := s.operators.IsAdmin(ctx, operatorID)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !isAdmin {
		return ErrForbidden
	}
	return nil
}
