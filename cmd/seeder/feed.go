package main

import (
	"fmt"
	"math/rand"
	"time"

	"reconciler/internal/models"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const (
	tradeSpacing  = 7 * time.Minute
	driftedOffset = 5 * time.Minute
	gateApproved  = 7
)

// demoFeed generates one operator's trades and payouts. Every fifth payout
// drifts outside the matching tolerance and every tenth trade (offset 7)
// is still pending, so the feed always leaves work for manual review.
func demoFeed(operatorID string, count int, start time.Time, rng *rand.Rand) ([]models.P2PTransaction, []models.GateTransaction) {
	trades := make([]models.P2PTransaction, 0, count)
	payouts := make([]models.GateTransaction, 0, count)
	for i := 0; i < count; i++ {
		completedAt := start.Add(time.Duration(i) * tradeSpacing)
		amount := decimal.New(int64(5000+rng.Intn(45000)), -2)
		price := decimal.New(int64(9000+rng.Intn(500)), -2)
		course := price.Sub(decimal.New(int64(50+rng.Intn(100)), -2))

		status := models.P2PStatusCompleted
		if i%10 == 7 {
			status = models.P2PStatusPending
		}
		trades = append(trades, models.P2PTransaction{
			ID:           fmt.Sprintf("%s-p2p-%05d", operatorID, i),
			UserID:       operatorID,
			Counterparty: fmt.Sprintf("buyer%03d", rng.Intn(500)),
			Amount:       amount,
			TotalRub:     amount.Mul(price).Round(2),
			Price:        price,
			CompletedAt:  completedAt,
			Method:       "sbp",
			Status:       status,
		})

		offset := time.Duration(rng.Intn(91)-45) * time.Second
		if i%5 == 4 {
			offset = driftedOffset
		}
		approvedAt := completedAt.Add(offset)
		payouts = append(payouts, models.GateTransaction{
			ID:            fmt.Sprintf("%s-gate-%05d", operatorID, i),
			UserID:        operatorID,
			Wallet:        fmt.Sprintf("wallet-%03d", rng.Intn(50)),
			AmountRub:     amount.Mul(course).Round(2),
			AmountUsdt:    amount,
			TotalRub:      amount.Mul(course).Round(2),
			TotalUsdt:     amount.Mul(decimal.RequireFromString("1.012")).Round(6),
			Status:        gateApproved,
			Bank:          "sber",
			PaymentMethod: "card",
			Course:        course,
			ApprovedAt:    &approvedAt,
			CreatedAt:     approvedAt.Add(-2 * time.Minute),
		})
	}
	return trades, payouts
}

func numeric(value decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: value.Coefficient(), Exp: value.Exponent(), Valid: true}
}

var p2pColumns = []string{"id", "user_id", "counterparty", "amount", "total_rub", "price", "completed_at", "method", "status", "completed_once"}

func p2pRows(trades []models.P2PTransaction) [][]any {
	rows := make([][]any, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []any{
			t.ID, t.UserID, t.Counterparty, numeric(t.Amount), numeric(t.TotalRub), numeric(t.Price),
			t.CompletedAt, t.Method, t.Status, t.Status == models.P2PStatusCompleted,
		})
	}
	return rows
}

var gateColumns = []string{
	"id", "user_id", "wallet", "amount_rub", "amount_usdt", "total_rub", "total_usdt", "status",
	"bank", "payment_method", "course", "approved_at", "created_at",
}

func gateRows(payouts []models.GateTransaction) [][]any {
	rows := make([][]any, 0, len(payouts))
	for _, p := range payouts {
		rows = append(rows, []any{
			p.ID, p.UserID, p.Wallet, numeric(p.AmountRub), numeric(p.AmountUsdt), numeric(p.TotalRub),
			numeric(p.TotalUsdt), int32(p.Status), p.Bank, p.PaymentMethod, numeric(p.Course),
			p.ApprovedAt, p.CreatedAt,
		})
	}
	return rows
}
