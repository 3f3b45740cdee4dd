package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
)

type GateStore struct {
	db DB
}

func NewGateStore(db DB) *GateStore {
	return &GateStore{db: db}
}

const gateColumns = `g.id, g.user_id, g.wallet, g.amount_rub, g.amount_usdt, g.total_rub, g.total_usdt, g.status,
	g.bank, g.payment_method, g.course, g.approved_at, g.created_at`

func (s *GateStore) GetByID(ctx context.Context, id string) (models.GateTransaction, error) {
	var payout models.GateTransaction
	err := s.db.GetContext(ctx, &payout, `SELECT `+gateColumns+` FROM gate_transactions g WHERE g.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GateTransaction{}, reconcile.NotFound(reconcile.SideGate, id)
		}
		return models.GateTransaction{}, fmt.Errorf("get gate transaction: %w", err)
	}
	return payout, nil
}

func (s *GateStore) List(ctx context.Context, filter TransactionFilter) ([]models.GateTransaction, error) {
	q := gateQuery(filter)
	query := `SELECT ` + gateColumns + ` FROM gate_transactions g` + q.whereSQL() +
		` ORDER BY COALESCE(g.approved_at, g.created_at), g.id` + q.page(filter.Limit, filter.Offset)
	var payouts []models.GateTransaction
	if err := s.db.SelectContext(ctx, &payouts, query, q.args...); err != nil {
		return nil, fmt.Errorf("list gate transactions: %w", err)
	}
	return payouts, nil
}

func (s *GateStore) Count(ctx context.Context, filter TransactionFilter) (int, error) {
	q := gateQuery(filter)
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM gate_transactions g`+q.whereSQL(), q.args...); err != nil {
		return 0, fmt.Errorf("count gate transactions: %w", err)
	}
	return count, nil
}

// Upsert inserts a payout or refreshes it. approved_at can only move from
// null to a value.
func (s *GateStore) Upsert(ctx context.Context, tx Execer, payout models.GateTransaction) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO gate_transactions (id, user_id, wallet, amount_rub, amount_usdt, total_rub, total_usdt, status,
			bank, payment_method, course, approved_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			wallet = EXCLUDED.wallet,
			amount_rub = EXCLUDED.amount_rub,
			amount_usdt = EXCLUDED.amount_usdt,
			total_rub = EXCLUDED.total_rub,
			total_usdt = EXCLUDED.total_usdt,
			bank = EXCLUDED.bank,
			payment_method = EXCLUDED.payment_method,
			course = EXCLUDED.course,
			approved_at = COALESCE(gate_transactions.approved_at, EXCLUDED.approved_at)
		WHERE gate_transactions.user_id = EXCLUDED.user_id
	`, payout.ID, payout.UserID, payout.Wallet, payout.AmountRub, payout.AmountUsdt, payout.TotalRub,
		payout.TotalUsdt, payout.Status, payout.Bank, payout.PaymentMethod, payout.Course,
		payout.ApprovedAt, payout.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert gate transaction %s: %w", payout.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func gateQuery(filter TransactionFilter) *queryBuilder {
	q := &queryBuilder{}
	if filter.UserID != "" {
		q.where("g.user_id = " + q.arg(filter.UserID))
	}
	if filter.From != nil {
		q.where("COALESCE(g.approved_at, g.created_at) >= " + q.arg(*filter.From))
	}
	if filter.To != nil {
		q.where("COALESCE(g.approved_at, g.created_at) <= " + q.arg(*filter.To))
	}
	if filter.ApprovedOnly {
		q.where("g.approved_at IS NOT NULL")
	}
	if filter.UnmatchedOnly {
		q.where("NOT EXISTS (SELECT 1 FROM transaction_matches m WHERE m.gate_transaction_id = g.id)")
	}
	if filter.Search != "" {
		q.where(q.anyILike(filter.Search, "g.id", "g.wallet", "g.bank", "g.payment_method",
			"g.amount_rub::text", "g.amount_usdt::text", "g.total_rub::text", "g.total_usdt::text"))
	}
	return q
}
