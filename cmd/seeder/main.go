package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"reconciler/internal/config"
	"reconciler/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const (
	tradesPerOperator = 500
	randomSeed        = 42
)

var demoOperators = []struct {
	id       string
	username string
	rate     pgtype.Numeric
	admin    bool
}{
	{"admin", "admin", pgtype.Numeric{}, true},
	{"op-alice", "alice", numeric(decimal.NewFromInt(40)), false},
	{"op-bob", "bob", pgtype.Numeric{}, false},
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Logging)

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer conn.Close(ctx)

	if err := seed(ctx, conn, logger); err != nil {
		logger.Error("seeding failed", "error", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, conn *pgx.Conn, logger *slog.Logger) error {
	return pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		for _, op := range demoOperators {
			if _, err := tx.Exec(ctx, `
				INSERT INTO operators (id, username, commission_rate, is_admin)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO NOTHING
			`, op.id, op.username, op.rate, op.admin); err != nil {
				return fmt.Errorf("insert operator %s: %w", op.id, err)
			}
		}

		var existing int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM p2p_transactions`).Scan(&existing); err != nil {
			return fmt.Errorf("count trades: %w", err)
		}
		if existing > 0 {
			logger.Info("database already has trades, skipping", "count", existing)
			return nil
		}

		rng := rand.New(rand.NewSource(randomSeed))
		start := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Minute)
		for _, op := range demoOperators {
			if op.admin {
				continue
			}
			trades, payouts := demoFeed(op.id, tradesPerOperator, start, rng)
			copied, err := tx.CopyFrom(ctx, pgx.Identifier{"p2p_transactions"}, p2pColumns, pgx.CopyFromRows(p2pRows(trades)))
			if err != nil {
				return fmt.Errorf("copy trades for %s: %w", op.id, err)
			}
			logger.Info("seeded trades", "operator", op.id, "rows", copied)
			copied, err = tx.CopyFrom(ctx, pgx.Identifier{"gate_transactions"}, gateColumns, pgx.CopyFromRows(gateRows(payouts)))
			if err != nil {
				return fmt.Errorf("copy payouts for %s: %w", op.id, err)
			}
			logger.Info("seeded payouts", "operator", op.id, "rows", copied)
		}
		return nil
	})
}
