package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reconciler/internal/db"
	"reconciler/internal/models"
	"reconciler/internal/reconcile"

	"github.com/shopspring/decimal"
)

type MatchStore struct {
	db DB
}

func NewMatchStore(db DB) *MatchStore {
	return &MatchStore{db: db}
}

type MatchInput struct {
	ID                string
	UserID            string
	P2PTransactionID  string
	GateTransactionID string
	IsAutoMatched     bool
	TimeDifference    int
}

// Create inserts a match inside the caller's transaction. Both transaction
// rows are locked first so concurrent attempts on the same ids serialize;
// the unique constraints on transaction_matches remain the final guard.
func (s *MatchStore) Create(ctx context.Context, tx Tx, input MatchInput) (models.TransactionMatch, error) {
	if err := lockRow(ctx, tx, "p2p_transactions", input.P2PTransactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TransactionMatch{}, reconcile.NotFound(reconcile.SideP2P, input.P2PTransactionID)
		}
		return models.TransactionMatch{}, fmt.Errorf("lock p2p transaction: %w", err)
	}
	if err := lockRow(ctx, tx, "gate_transactions", input.GateTransactionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TransactionMatch{}, reconcile.NotFound(reconcile.SideGate, input.GateTransactionID)
		}
		return models.TransactionMatch{}, fmt.Errorf("lock gate transaction: %w", err)
	}
	if matched, err := isMatched(ctx, tx, reconcile.SideP2P, input.P2PTransactionID); err != nil {
		return models.TransactionMatch{}, err
	} else if matched {
		return models.TransactionMatch{}, reconcile.AlreadyMatched(reconcile.SideP2P, input.P2PTransactionID)
	}
	if matched, err := isMatched(ctx, tx, reconcile.SideGate, input.GateTransactionID); err != nil {
		return models.TransactionMatch{}, err
	} else if matched {
		return models.TransactionMatch{}, reconcile.AlreadyMatched(reconcile.SideGate, input.GateTransactionID)
	}

	var match models.TransactionMatch
	err := tx.GetContext(ctx, &match, `
		INSERT INTO transaction_matches (id, user_id, p2p_transaction_id, gate_transaction_id, is_auto_matched, time_difference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, p2p_transaction_id, gate_transaction_id, is_auto_matched, time_difference, created_at
	`, input.ID, input.UserID, input.P2PTransactionID, input.GateTransactionID, input.IsAutoMatched, input.TimeDifference)
	if err != nil {
		return models.TransactionMatch{}, classifyInsertError(err, input)
	}
	return match, nil
}

func (s *MatchStore) IsMatched(ctx context.Context, side reconcile.Side, transactionID string) (bool, error) {
	return isMatched(ctx, s.db, side, transactionID)
}

type matchDetailRow struct {
	ID                string    `db:"id"`
	UserID            string    `db:"user_id"`
	P2PTransactionID  string    `db:"p2p_transaction_id"`
	GateTransactionID string    `db:"gate_transaction_id"`
	IsAutoMatched     bool      `db:"is_auto_matched"`
	TimeDifference    int       `db:"time_difference"`
	CreatedAt         time.Time `db:"created_at"`

	P2PCounterparty string          `db:"p2p_counterparty"`
	P2PAmount       decimal.Decimal `db:"p2p_amount"`
	P2PTotalRub     decimal.Decimal `db:"p2p_total_rub"`
	P2PPrice        decimal.Decimal `db:"p2p_price"`
	P2PCompletedAt  time.Time       `db:"p2p_completed_at"`
	P2PMethod       string          `db:"p2p_method"`
	P2PStatus       string          `db:"p2p_status"`

	GateWallet        string          `db:"gate_wallet"`
	GateAmountRub     decimal.Decimal `db:"gate_amount_rub"`
	GateAmountUsdt    decimal.Decimal `db:"gate_amount_usdt"`
	GateTotalRub      decimal.Decimal `db:"gate_total_rub"`
	GateTotalUsdt     decimal.Decimal `db:"gate_total_usdt"`
	GateStatus        int             `db:"gate_status"`
	GateBank          string          `db:"gate_bank"`
	GatePaymentMethod string          `db:"gate_payment_method"`
	GateCourse        decimal.Decimal `db:"gate_course"`
	GateApprovedAt    *time.Time      `db:"gate_approved_at"`
	GateCreatedAt     time.Time       `db:"gate_created_at"`
}

// List returns matches joined with both transactions, newest first.
func (s *MatchStore) List(ctx context.Context, filter MatchFilter) ([]models.MatchDetail, error) {
	q := &queryBuilder{}
	if filter.UserID != "" {
		q.where("m.user_id = " + q.arg(filter.UserID))
	}
	if filter.From != nil || filter.To != nil {
		q.where("(" + timeRange(q, "p.completed_at", filter) + " OR " +
			timeRange(q, "COALESCE(g.approved_at, g.created_at)", filter) + ")")
	}
	if filter.Search != "" {
		q.where(q.anyILike(filter.Search,
			"m.p2p_transaction_id", "m.gate_transaction_id", "p.counterparty", "p.method",
			"g.wallet", "g.bank", "g.payment_method", "p.amount::text", "g.amount_usdt::text", "g.total_rub::text"))
	}
	query := `
		SELECT m.id, m.user_id, m.p2p_transaction_id, m.gate_transaction_id, m.is_auto_matched, m.time_difference, m.created_at,
		       p.counterparty AS p2p_counterparty, p.amount AS p2p_amount, p.total_rub AS p2p_total_rub,
		       p.price AS p2p_price, p.completed_at AS p2p_completed_at, p.method AS p2p_method, p.status AS p2p_status,
		       g.wallet AS gate_wallet, g.amount_rub AS gate_amount_rub, g.amount_usdt AS gate_amount_usdt,
		       g.total_rub AS gate_total_rub, g.total_usdt AS gate_total_usdt, g.status AS gate_status,
		       g.bank AS gate_bank, g.payment_method AS gate_payment_method, g.course AS gate_course,
		       g.approved_at AS gate_approved_at, g.created_at AS gate_created_at
		FROM transaction_matches m
		JOIN p2p_transactions p ON p.id = m.p2p_transaction_id
		JOIN gate_transactions g ON g.id = m.gate_transaction_id` +
		q.whereSQL() + ` ORDER BY m.created_at DESC, m.id` + q.page(filter.Limit, filter.Offset)

	var rows []matchDetailRow
	if err := s.db.SelectContext(ctx, &rows, query, q.args...); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	details := make([]models.MatchDetail, 0, len(rows))
	for _, row := range rows {
		details = append(details, row.toDetail())
	}
	return details, nil
}

func (r matchDetailRow) toDetail() models.MatchDetail {
	return models.MatchDetail{
		TransactionMatch: models.TransactionMatch{
			ID:                r.ID,
			UserID:            r.UserID,
			P2PTransactionID:  r.P2PTransactionID,
			GateTransactionID: r.GateTransactionID,
			IsAutoMatched:     r.IsAutoMatched,
			TimeDifference:    r.TimeDifference,
			CreatedAt:         r.CreatedAt,
		},
		P2P: models.P2PTransaction{
			ID:           r.P2PTransactionID,
			UserID:       r.UserID,
			Counterparty: r.P2PCounterparty,
			Amount:       r.P2PAmount,
			TotalRub:     r.P2PTotalRub,
			Price:        r.P2PPrice,
			CompletedAt:  r.P2PCompletedAt,
			Method:       r.P2PMethod,
			Status:       r.P2PStatus,
		},
		Gate: models.GateTransaction{
			ID:            r.GateTransactionID,
			UserID:        r.UserID,
			Wallet:        r.GateWallet,
			AmountRub:     r.GateAmountRub,
			AmountUsdt:    r.GateAmountUsdt,
			TotalRub:      r.GateTotalRub,
			TotalUsdt:     r.GateTotalUsdt,
			Status:        r.GateStatus,
			Bank:          r.GateBank,
			PaymentMethod: r.GatePaymentMethod,
			Course:        r.GateCourse,
			ApprovedAt:    r.GateApprovedAt,
			CreatedAt:     r.GateCreatedAt,
		},
	}
}

func timeRange(q *queryBuilder, column string, filter MatchFilter) string {
	var parts []string
	if filter.From != nil {
		parts = append(parts, column+" >= "+q.arg(*filter.From))
	}
	if filter.To != nil {
		parts = append(parts, column+" <= "+q.arg(*filter.To))
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func lockRow(ctx context.Context, tx Getter, table, id string) error {
	var locked string
	return tx.GetContext(ctx, &locked, `SELECT id FROM `+table+` WHERE id = $1 FOR UPDATE`, id)
}

func isMatched(ctx context.Context, q Getter, side reconcile.Side, id string) (bool, error) {
	column := "p2p_transaction_id"
	if side == reconcile.SideGate {
		column = "gate_transaction_id"
	}
	var exists bool
	err := q.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM transaction_matches WHERE `+column+` = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("check %s match: %w", side, err)
	}
	return exists, nil
}

func classifyInsertError(err error, input MatchInput) error {
	switch {
	case db.IsUniqueViolation(err):
		if strings.Contains(db.ConstraintName(err), "gate") {
			return reconcile.AlreadyMatched(reconcile.SideGate, input.GateTransactionID)
		}
		return reconcile.AlreadyMatched(reconcile.SideP2P, input.P2PTransactionID)
	case db.IsForeignKeyViolation(err):
		if strings.Contains(db.ConstraintName(err), "gate") {
			return reconcile.NotFound(reconcile.SideGate, input.GateTransactionID)
		}
		return reconcile.NotFound(reconcile.SideP2P, input.P2PTransactionID)
	}
	return fmt.Errorf("insert match: %w", err)
}
