package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
)

type P2PStore struct {
	db DB
}

func NewP2PStore(db DB) *P2PStore {
	return &P2PStore{db: db}
}

const p2pColumns = `p.id, p.user_id, p.counterparty, p.amount, p.total_rub, p.price, p.completed_at, p.method, p.status`

func (s *P2PStore) GetByID(ctx context.Context, id string) (models.P2PTransaction, error) {
	var trade models.P2PTransaction
	err := s.db.GetContext(ctx, &trade, `SELECT `+p2pColumns+` FROM p2p_transactions p WHERE p.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.P2PTransaction{}, reconcile.NotFound(reconcile.SideP2P, id)
		}
		return models.P2PTransaction{}, fmt.Errorf("get p2p transaction: %w", err)
	}
	return trade, nil
}

func (s *P2PStore) List(ctx context.Context, filter TransactionFilter) ([]models.P2PTransaction, error) {
	q := p2pQuery(filter)
	query := `SELECT ` + p2pColumns + ` FROM p2p_transactions p` + q.whereSQL() +
		` ORDER BY p.completed_at, p.id` + q.page(filter.Limit, filter.Offset)
	var trades []models.P2PTransaction
	if err := s.db.SelectContext(ctx, &trades, query, q.args...); err != nil {
		return nil, fmt.Errorf("list p2p transactions: %w", err)
	}
	return trades, nil
}

func (s *P2PStore) Count(ctx context.Context, filter TransactionFilter) (int, error) {
	q := p2pQuery(filter)
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM p2p_transactions p`+q.whereSQL(), q.args...); err != nil {
		return 0, fmt.Errorf("count p2p transactions: %w", err)
	}
	return count, nil
}

// frozenTrade holds for a row that was ever completed or already sits in a
// match. Such a row keeps its amounts and timestamp through later status flips.
const frozenTrade = `(p2p_transactions.completed_once OR EXISTS (
	SELECT 1 FROM transaction_matches m WHERE m.p2p_transaction_id = p2p_transactions.id))`

// Upsert inserts a trade or refreshes it. Frozen trades only take status
// changes, and a row never changes owner.
func (s *P2PStore) Upsert(ctx context.Context, tx Execer, trade models.P2PTransaction) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO p2p_transactions (id, user_id, counterparty, amount, total_rub, price, completed_at, method, status, completed_once)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9 = 'completed')
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_once = p2p_transactions.completed_once OR EXCLUDED.completed_once,
			counterparty = CASE WHEN `+frozenTrade+` THEN p2p_transactions.counterparty ELSE EXCLUDED.counterparty END,
			amount = CASE WHEN `+frozenTrade+` THEN p2p_transactions.amount ELSE EXCLUDED.amount END,
			total_rub = CASE WHEN `+frozenTrade+` THEN p2p_transactions.total_rub ELSE EXCLUDED.total_rub END,
			price = CASE WHEN `+frozenTrade+` THEN p2p_transactions.price ELSE EXCLUDED.price END,
			completed_at = CASE WHEN `+frozenTrade+` THEN p2p_transactions.completed_at ELSE EXCLUDED.completed_at END,
			method = CASE WHEN `+frozenTrade+` THEN p2p_transactions.method ELSE EXCLUDED.method END
		WHERE p2p_transactions.user_id = EXCLUDED.user_id
	`, trade.ID, trade.UserID, trade.Counterparty, trade.Amount, trade.TotalRub, trade.Price,
		trade.CompletedAt, trade.Method, trade.Status)
	if err != nil {
		return false, fmt.Errorf("upsert p2p transaction %s: %w", trade.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func p2pQuery(filter TransactionFilter) *queryBuilder {
	q := &queryBuilder{}
	if filter.UserID != "" {
		q.where("p.user_id = " + q.arg(filter.UserID))
	}
	if filter.From != nil {
		q.where("p.completed_at >= " + q.arg(*filter.From))
	}
	if filter.To != nil {
		q.where("p.completed_at <= " + q.arg(*filter.To))
	}
	if filter.CompletedOnly {
		q.where("p.status = " + q.arg(models.P2PStatusCompleted))
	}
	if filter.UnmatchedOnly {
		q.where("NOT EXISTS (SELECT 1 FROM transaction_matches m WHERE m.p2p_transaction_id = p.id)")
	}
	if filter.Search != "" {
		q.where(q.anyILike(filter.Search, "p.id", "p.counterparty", "p.method", "p.amount::text", "p.total_rub::text", "p.price::text"))
	}
	return q
}
