package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"

	"github.com/jmoiron/sqlx"
)

const maxIngestBatch = 5000

type IngestResult struct {
	Received int `json:"received"`
	Applied  int `json:"applied"`
}

// IngestP2P upserts a batch of trades owned by operatorID in one
// transaction. Rows owned by someone else are left untouched and not
// counted as applied.
func (s *ReconciliationService) IngestP2P(ctx context.Context, operatorID string, trades []models.P2PTransaction) (IngestResult, error) {
	if err := checkBatch(len(trades)); err != nil {
		return IngestResult{}, err
	}
	for i := range trades {
		trades[i].UserID = operatorID
		if err := validateTrade(i, trades[i]); err != nil {
			return IngestResult{}, err
		}
	}
	result := IngestResult{Received: len(trades)}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result.Applied = 0
		for _, trade := range trades {
			applied, err := s.p2pStore.Upsert(ctx, tx, trade)
			if err != nil {
				return err
			}
			if applied {
				result.Applied++
			}
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode audit data: %w", err)
		}
		return s.audit.Log(ctx, tx, operatorID, "ingest.p2p", "p2p_transactions", operatorID, string(data))
	})
	if err != nil {
		return IngestResult{}, err
	}
	s.logger.Info("p2p batch ingested", "operator_id", operatorID, "received", result.Received, "applied", result.Applied)
	return result, nil
}

func (s *ReconciliationService) IngestGate(ctx context.Context, operatorID string, payouts []models.GateTransaction) (IngestResult, error) {
	if err := checkBatch(len(payouts)); err != nil {
		return IngestResult{}, err
	}
	for i := range payouts {
		payouts[i].UserID = operatorID
		if err := validatePayout(i, payouts[i]); err != nil {
			return IngestResult{}, err
		}
	}
	result := IngestResult{Received: len(payouts)}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result.Applied = 0
		for _, payout := range payouts {
			applied, err := s.gateStore.Upsert(ctx, tx, payout)
			if err != nil {
				return err
			}
			if applied {
				result.Applied++
			}
		}
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode audit data: %w", err)
		}
		return s.audit.Log(ctx, tx, operatorID, "ingest.gate", "gate_transactions", operatorID, string(data))
	})
	if err != nil {
		return IngestResult{}, err
	}
	s.logger.Info("gate batch ingested", "operator_id", operatorID, "received", result.Received, "applied", result.Applied)
	return result, nil
}

func checkBatch(size int) error {
	if size == 0 {
		return reconcile.Invalid("transactions", "must not be empty")
	}
	if size > maxIngestBatch {
		return reconcile.Invalid("transactions", fmt.Sprintf("at most %d rows per batch", maxIngestBatch))
	}
	return nil
}

func validateTrade(index int, trade models.P2PTransaction) error {
	field := func(name string) string { return fmt.Sprintf("transactions[%d].%s", index, name) }
	if strings.TrimSpace(trade.ID) == "" {
		return reconcile.Invalid(field("id"), "is required")
	}
	switch trade.Status {
	case models.P2PStatusPending, models.P2PStatusCompleted, models.P2PStatusCancelled:
	default:
		return reconcile.Invalid(field("status"), "must be pending, completed or cancelled")
	}
	if trade.Status == models.P2PStatusCompleted && trade.CompletedAt.IsZero() {
		return reconcile.Invalid(field("completed_at"), "is required for completed trades")
	}
	if trade.Amount.IsNegative() || trade.TotalRub.IsNegative() || trade.Price.IsNegative() {
		return reconcile.Invalid(field("amount"), "must not be negative")
	}
	return nil
}

func validatePayout(index int, payout models.GateTransaction) error {
	field := func(name string) string { return fmt.Sprintf("transactions[%d].%s", index, name) }
	if strings.TrimSpace(payout.ID) == "" {
		return reconcile.Invalid(field("id"), "is required")
	}
	if payout.CreatedAt.IsZero() {
		return reconcile.Invalid(field("created_at"), "is required")
	}
	if payout.AmountRub.IsNegative() || payout.AmountUsdt.IsNegative() ||
		payout.TotalRub.IsNegative() || payout.TotalUsdt.IsNegative() || payout.Course.IsNegative() {
		return reconcile.Invalid(field("amount"), "must not be negative")
	}
	return nil
}
