package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	P2PStatusPending   = "pending"
	P2PStatusCompleted = "completed"
	P2PStatusCancelled = "cancelled"
)

type Operator struct {
	ID             string              `db:"id" json:"id"`
	Username       string              `db:"username" json:"username"`
	CommissionRate decimal.NullDecimal `db:"commission_rate" json:"commission_rate"`
	IsAdmin        bool                `db:"is_admin" json:"is_admin"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

type P2PTransaction struct {
	ID           string          `db:"id" json:"id"`
	UserID       string          `db:"user_id" json:"user_id"`
	Counterparty string          `db:"counterparty" json:"counterparty"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	TotalRub     decimal.Decimal `db:"total_rub" json:"total_rub"`
	Price        decimal.Decimal `db:"price" json:"price"`
	CompletedAt  time.Time       `db:"completed_at" json:"completed_at"`
	Method       string          `db:"method" json:"method"`
	Status       string          `db:"status" json:"status"`
}

type GateTransaction struct {
	ID            string          `db:"id" json:"id"`
	UserID        string          `db:"user_id" json:"user_id"`
	Wallet        string          `db:"wallet" json:"wallet"`
	AmountRub     decimal.Decimal `db:"amount_rub" json:"amount_rub"`
	AmountUsdt    decimal.Decimal `db:"amount_usdt" json:"amount_usdt"`
	TotalRub      decimal.Decimal `db:"total_rub" json:"total_rub"`
	TotalUsdt     decimal.Decimal `db:"total_usdt" json:"total_usdt"`
	Status        int             `db:"status" json:"status"`
	Bank          string          `db:"bank" json:"bank"`
	PaymentMethod string          `db:"payment_method" json:"payment_method"`
	Course        decimal.Decimal `db:"course" json:"course"`
	ApprovedAt    *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

type TransactionMatch struct {
	ID                string    `db:"id" json:"id"`
	UserID            string    `db:"user_id" json:"user_id"`
	P2PTransactionID  string    `db:"p2p_transaction_id" json:"p2p_transaction_id"`
	GateTransactionID string    `db:"gate_transaction_id" json:"gate_transaction_id"`
	IsAutoMatched     bool      `db:"is_auto_matched" json:"is_auto_matched"`
	TimeDifference    int       `db:"time_difference" json:"time_difference"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// MatchDetail is a match joined with both of its transactions.
type MatchDetail struct {
	TransactionMatch
	P2P  P2PTransaction  `json:"p2p"`
	Gate GateTransaction `json:"gate"`
}
