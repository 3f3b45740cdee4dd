package reconcile

import (
	"testing"
	"time"

	"reconciler/internal/models"

	"github.com/shopspring/decimal"
)

func mustTime(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t.Fatalf("bad time %q: %v", raw, err)
	}
	return parsed
}

func trade(id, owner string, completedAt time.Time, amount string) models.P2PTransaction {
	return models.P2PTransaction{
		ID:          id,
		UserID:      owner,
		Amount:      decimal.RequireFromString(amount),
		TotalRub:    decimal.RequireFromString(amount).Mul(decimal.NewFromInt(100)),
		Price:       decimal.NewFromInt(100),
		CompletedAt: completedAt,
		Status:      models.P2PStatusCompleted,
	}
}

func payout(id, owner string, approvedAt time.Time, amountUsdt string) models.GateTransaction {
	approved := approvedAt
	return models.GateTransaction{
		ID:         id,
		UserID:     owner,
		AmountUsdt: decimal.RequireFromString(amountUsdt),
		TotalUsdt:  decimal.RequireFromString(amountUsdt),
		TotalRub:   decimal.RequireFromString(amountUsdt).Mul(decimal.NewFromInt(100)),
		Course:     decimal.NewFromInt(99),
		ApprovedAt: &approved,
		CreatedAt:  approvedAt.Add(-time.Minute),
	}
}

func TestCorrelateWithinWindow(t *testing.T) {
	p1 := trade("P1", "op-1", mustTime(t, "2024-01-01T12:00:00Z"), "100")
	g1 := payout("G1", "op-1", mustTime(t, "2024-01-01T12:00:30Z"), "100")
	pairs := Correlate([]models.GateTransaction{g1}, []models.P2PTransaction{p1}, DefaultSettings())
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].P2P.ID != "P1" || pairs[0].Gate.ID != "G1" {
		t.Fatalf("unexpected pair: %+v", pairs[0])
	}
	if pairs[0].TimeDifference != 0 {
		t.Fatalf("expected time difference 0, got %d", pairs[0].TimeDifference)
	}
	if pairs[0].Delta != -30*time.Second {
		t.Fatalf("unexpected delta: %s", pairs[0].Delta)
	}
}

func TestCorrelateOutsideWindow(t *testing.T) {
	p2 := trade("P2", "op-1", mustTime(t, "2024-01-01T12:01:01Z"), "100")
	g2 := payout("G2", "op-1", mustTime(t, "2024-01-01T12:00:00Z"), "100")
	pairs := Correlate([]models.GateTransaction{g2}, []models.P2PTransaction{p2}, DefaultSettings())
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", pairs)
	}
}

func TestCorrelateWindowIsInclusive(t *testing.T) {
	p := trade("P", "op-1", mustTime(t, "2024-01-01T12:01:00Z"), "100")
	g := payout("G", "op-1", mustTime(t, "2024-01-01T12:00:00Z"), "100")
	pairs := Correlate([]models.GateTransaction{g}, []models.P2PTransaction{p}, DefaultSettings())
	if len(pairs) != 1 || pairs[0].TimeDifference != 1 {
		t.Fatalf("expected one pair with 1 minute difference, got %+v", pairs)
	}
}

func TestCorrelatePicksClosestTrade(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	far := trade("P-far", "op-1", anchor.Add(-50*time.Second), "100")
	near := trade("P-near", "op-1", anchor.Add(10*time.Second), "100")
	g := payout("G", "op-1", anchor, "100")
	pairs := Correlate([]models.GateTransaction{g}, []models.P2PTransaction{far, near}, DefaultSettings())
	if len(pairs) != 1 || pairs[0].P2P.ID != "P-near" {
		t.Fatalf("expected closest trade, got %+v", pairs)
	}
}

func TestCorrelateTieBreaksOnLowestID(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	before := trade("P-b", "op-1", anchor.Add(-20*time.Second), "100")
	after := trade("P-a", "op-1", anchor.Add(20*time.Second), "100")
	g := payout("G", "op-1", anchor, "100")
	pairs := Correlate([]models.GateTransaction{g}, []models.P2PTransaction{before, after}, DefaultSettings())
	if len(pairs) != 1 || pairs[0].P2P.ID != "P-a" {
		t.Fatalf("expected lowest id on tie, got %+v", pairs)
	}
}

func TestCorrelateNeverReusesTrade(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	only := trade("P", "op-1", anchor, "100")
	first := payout("G1", "op-1", anchor.Add(5*time.Second), "100")
	second := payout("G2", "op-1", anchor.Add(10*time.Second), "100")
	pairs := Correlate([]models.GateTransaction{second, first}, []models.P2PTransaction{only}, DefaultSettings())
	if len(pairs) != 1 || pairs[0].Gate.ID != "G1" {
		t.Fatalf("expected earliest gate to claim the trade, got %+v", pairs)
	}
}

func TestCorrelateSkipsIneligibleRows(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	pending := trade("P-pending", "op-1", anchor, "100")
	pending.Status = models.P2PStatusPending
	otherOwner := trade("P-other", "op-2", anchor, "100")
	unapproved := payout("G-unapproved", "op-1", anchor, "100")
	unapproved.ApprovedAt = nil
	g := payout("G", "op-1", anchor, "100")
	pairs := Correlate(
		[]models.GateTransaction{unapproved, g},
		[]models.P2PTransaction{pending, otherOwner},
		DefaultSettings(),
	)
	if len(pairs) != 0 {
		t.Fatalf("expected no pairs, got %+v", pairs)
	}
}

func TestCorrelateStrictModeChecksAmounts(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	p := trade("P", "op-1", anchor, "100")
	g := payout("G", "op-1", anchor, "150")
	settings := DefaultSettings()
	if pairs := Correlate([]models.GateTransaction{g}, []models.P2PTransaction{p}, settings); len(pairs) != 1 {
		t.Fatalf("permissive mode should match, got %+v", pairs)
	}
	settings.Mode = ModeStrict
	if pairs := Correlate([]models.GateTransaction{g}, []models.P2PTransaction{p}, settings); len(pairs) != 0 {
		t.Fatalf("strict mode should reject mismatched amounts, got %+v", pairs)
	}
	g = payout("G", "op-1", anchor, "100.5")
	p.TotalRub = g.TotalRub
	if pairs := Correlate([]models.GateTransaction{g}, []models.P2PTransaction{p}, settings); len(pairs) != 1 {
		t.Fatalf("strict mode should accept amounts within tolerance, got %+v", pairs)
	}
}

func TestCandidatesForGateRanked(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	g := payout("G", "op-1", anchor, "100")
	trades := []models.P2PTransaction{
		trade("P-3", "op-1", anchor.Add(10*time.Minute), "100"),
		trade("P-1", "op-1", anchor.Add(30*time.Second), "100"),
		trade("P-2", "op-1", anchor.Add(-2*time.Minute), "90"),
		trade("P-out", "op-1", anchor.Add(2*time.Hour), "100"),
		trade("P-foreign", "op-2", anchor, "100"),
	}
	candidates := CandidatesForGate(g, trades, 30*time.Minute, DefaultSettings())
	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	if candidates[0].TransactionID != "P-1" || candidates[1].TransactionID != "P-2" || candidates[2].TransactionID != "P-3" {
		t.Fatalf("unexpected order: %+v", candidates)
	}
	if !candidates[0].WithinTolerance || candidates[1].WithinTolerance {
		t.Fatalf("unexpected tolerance flags: %+v", candidates)
	}
	if !candidates[0].AmountsAgree || candidates[1].AmountsAgree {
		t.Fatalf("unexpected amount flags: %+v", candidates)
	}
	if candidates[1].TimeDifference != 2 || candidates[1].DeltaSeconds != -120 {
		t.Fatalf("unexpected delta: %+v", candidates[1])
	}
}

func TestCandidatesForP2PUsesCreatedAtForPending(t *testing.T) {
	anchor := mustTime(t, "2024-01-01T12:00:00Z")
	p := trade("P", "op-1", anchor, "100")
	pending := payout("G-pending", "op-1", anchor, "100")
	pending.ApprovedAt = nil
	pending.CreatedAt = anchor.Add(20 * time.Second)
	candidates := CandidatesForP2P(p, []models.GateTransaction{pending}, time.Hour, DefaultSettings())
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].WithinTolerance {
		t.Fatalf("pending payout must not be flagged as within tolerance")
	}
	if candidates[0].Gate == nil || candidates[0].Gate.ID != "G-pending" {
		t.Fatalf("unexpected candidate: %+v", candidates[0])
	}
}

func TestTimeDifferenceMinutes(t *testing.T) {
	cases := map[time.Duration]int{
		30 * time.Second:   0,
		-30 * time.Second:  0,
		61 * time.Second:   1,
		-125 * time.Second: 2,
	}
	for delta, want := range cases {
		if got := TimeDifferenceMinutes(delta); got != want {
			t.Fatalf("TimeDifferenceMinutes(%s) = %d, want %d", delta, got, want)
		}
	}
}
