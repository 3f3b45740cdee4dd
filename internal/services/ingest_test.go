package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"reconciler/internal/models"
	"reconciler/internal/reconcile"
	"reconciler/internal/store"
)

func TestIngestP2PAssignsOwner(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	env.mem.addTrade(completedTrade("P9", "op-2", at(0)))
	trades := []models.P2PTransaction{
		completedTrade("P1", "", at(0)),
		completedTrade("P9", "", at(0)),
	}
	result, err := env.service.IngestP2P(context.Background(), "op-1", trades)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Received != 2 || result.Applied != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	trade, _ := memP2P{env.mem}.GetByID(context.Background(), "P1")
	if trade.UserID != "op-1" {
		t.Fatalf("expected owner op-1, got %q", trade.UserID)
	}
	other, _ := memP2P{env.mem}.GetByID(context.Background(), "P9")
	if other.UserID != "op-2" {
		t.Fatalf("foreign rows must keep their owner")
	}
}

func TestIngestP2PValidation(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	bad := completedTrade("P1", "", time.Time{})
	_, err := env.service.IngestP2P(context.Background(), "op-1", []models.P2PTransaction{bad})
	var validation *reconcile.ValidationError
	if !errors.As(err, &validation) || validation.Field != "transactions[0].completed_at" {
		t.Fatalf("expected completed_at validation error, got %v", err)
	}
	wrongStatus := completedTrade("P1", "", at(0))
	wrongStatus.Status = "refunded"
	if _, err := env.service.IngestP2P(context.Background(), "op-1", []models.P2PTransaction{wrongStatus}); !errors.Is(err, reconcile.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.service.IngestP2P(context.Background(), "op-1", nil); !errors.Is(err, reconcile.ErrValidation) {
		t.Fatalf("expected validation error for empty batch, got %v", err)
	}
}

func TestIngestP2PKeepsFieldsOfOnceCompletedTrade(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	ctx := context.Background()
	if _, err := env.service.IngestP2P(ctx, "op-1", []models.P2PTransaction{completedTrade("P1", "", at(0))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.mem.addPayout(approvedPayout("G1", "op-1", at(30*time.Second)))
	if auto, err := env.service.MatchAutomatically(ctx, at(-time.Minute), at(time.Minute)); err != nil || auto.MatchesCreated != 1 {
		t.Fatalf("expected one match, got %+v err=%v", auto, err)
	}

	cancelled := completedTrade("P1", "", at(0))
	cancelled.Status = models.P2PStatusCancelled
	if _, err := env.service.IngestP2P(ctx, "op-1", []models.P2PTransaction{cancelled}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rewritten := completedTrade("P1", "", at(10*time.Minute))
	rewritten.Amount = dec("999")
	rewritten.TotalRub = dec("91908")
	if _, err := env.service.IngestP2P(ctx, "op-1", []models.P2PTransaction{rewritten}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trade, err := memP2P{env.mem}.GetByID(ctx, "P1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade.Status != models.P2PStatusCompleted {
		t.Fatalf("expected status to follow the feed, got %q", trade.Status)
	}
	if !trade.Amount.Equal(dec("100")) || !trade.TotalRub.Equal(dec("9200")) || !trade.CompletedAt.Equal(at(0)) {
		t.Fatalf("matched trade was rewritten: %+v", trade)
	}
}

func TestIngestP2PKeepsFieldsAfterCancelWithoutMatch(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	ctx := context.Background()
	cancelled := completedTrade("P1", "", at(0))
	cancelled.Status = models.P2PStatusCancelled
	rewritten := completedTrade("P1", "", at(5*time.Minute))
	rewritten.Amount = dec("999")
	for _, trade := range []models.P2PTransaction{completedTrade("P1", "", at(0)), cancelled, rewritten} {
		if _, err := env.service.IngestP2P(ctx, "op-1", []models.P2PTransaction{trade}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	trade, _ := memP2P{env.mem}.GetByID(ctx, "P1")
	if !trade.Amount.Equal(dec("100")) || !trade.CompletedAt.Equal(at(0)) {
		t.Fatalf("once-completed trade was rewritten: %+v", trade)
	}
}

func TestIngestGateThenAutoMatch(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	env.mem.addTrade(completedTrade("P1", "op-1", at(0)))
	payout := approvedPayout("G1", "", at(45*time.Second))
	result, err := env.service.IngestGate(context.Background(), "op-1", []models.GateTransaction{payout})
	if err != nil || result.Applied != 1 {
		t.Fatalf("unexpected result %+v err=%v", result, err)
	}
	auto, err := env.service.MatchAutomatically(context.Background(), at(-time.Minute), at(time.Minute))
	if err != nil || auto.MatchesCreated != 1 {
		t.Fatalf("expected ingested payout to be matched, got %+v err=%v", auto, err)
	}
	payouts, _ := env.service.ListUnmatchedGate(context.Background(), store.TransactionFilter{UserID: "op-1"})
	if len(payouts) != 0 {
		t.Fatalf("expected no unmatched payouts, got %+v", payouts)
	}
}

func TestIngestWritesAuditSummary(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	var data string
	env.service.audit = stubAuditStore{
		logFn: func(_ context.Context, _ store.Execer, _, _, _, _, gotData string) error {
			data = gotData
			return nil
		},
	}
	if _, err := env.service.IngestP2P(context.Background(), "op-1", []models.P2PTransaction{completedTrade("P1", "", at(0))}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data != `{"received":1,"applied":1}` {
		t.Fatalf("unexpected audit data %s", data)
	}
}

func TestIngestFailsWhenAuditFails(t *testing.T) {
	env := newTestEnv(stubOperatorStore{}, reconcile.DefaultSettings())
	env.service.audit = stubAuditStore{
		logFn: func(context.Context, store.Execer, string, string, string, string, string) error {
			return errors.New("audit down")
		},
	}
	if _, err := env.service.IngestGate(context.Background(), "op-1", []models.GateTransaction{approvedPayout("G1", "", at(0))}); err == nil {
		t.Fatalf("expected error")
	}
}
