package reconcile

import (
	"sort"
	"time"

	"reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// Pair is a proposed automatic match.
type Pair struct {
	P2P  models.P2PTransaction
	Gate models.GateTransaction
	// Delta is p2p.completed_at - gate.approved_at.
	Delta          time.Duration
	TimeDifference int
}

// Candidate is one ranked option offered for manual confirmation.
type Candidate struct {
	Side            Side                    `json:"side"`
	TransactionID   string                  `json:"transaction_id"`
	Timestamp       time.Time               `json:"timestamp"`
	DeltaSeconds    int64                   `json:"delta_seconds"`
	TimeDifference  int                     `json:"time_difference"`
	WithinTolerance bool                    `json:"within_tolerance"`
	AmountsAgree    bool                    `json:"amounts_agree"`
	P2P             *models.P2PTransaction  `json:"p2p,omitempty"`
	Gate            *models.GateTransaction `json:"gate,omitempty"`
}

// TimeDifferenceMinutes is the absolute delta in whole minutes, truncated.
func TimeDifferenceMinutes(delta time.Duration) int {
	return int(absDuration(delta) / time.Minute)
}

// GateTimestamp is approved_at, falling back to created_at for pending payouts.
func GateTimestamp(gate models.GateTransaction) time.Time {
	if gate.ApprovedAt != nil {
		return *gate.ApprovedAt
	}
	return gate.CreatedAt
}

// Correlate pairs approved gate payouts with completed P2P trades of the same
// owner. Gates are visited in (approved_at, id) order and each claims the
// closest unclaimed trade inside the tolerance window; equal deltas go to the
// lowest trade id.
func Correlate(gates []models.GateTransaction, p2ps []models.P2PTransaction, settings Settings) []Pair {
	approved := make([]models.GateTransaction, 0, len(gates))
	for _, gate := range gates {
		if gate.ApprovedAt != nil {
			approved = append(approved, gate)
		}
	}
	sort.SliceStable(approved, func(i, j int) bool {
		left, right := *approved[i].ApprovedAt, *approved[j].ApprovedAt
		if !left.Equal(right) {
			return left.Before(right)
		}
		return approved[i].ID < approved[j].ID
	})

	byOwner := groupCompleted(p2ps)
	claimed := make(map[string]struct{})
	var pairs []Pair
	for _, gate := range approved {
		anchor := *gate.ApprovedAt
		trades := byOwner[gate.UserID]
		best := -1
		var bestDelta time.Duration
		start := sort.Search(len(trades), func(i int) bool {
			return !trades[i].CompletedAt.Before(anchor.Add(-settings.Tolerance))
		})
		for i := start; i < len(trades); i++ {
			trade := trades[i]
			if trade.CompletedAt.After(anchor.Add(settings.Tolerance)) {
				break
			}
			if _, taken := claimed[trade.ID]; taken {
				continue
			}
			if settings.Mode == ModeStrict && !AmountsAgree(trade, gate, settings.AmountTolerance) {
				continue
			}
			delta := absDuration(trade.CompletedAt.Sub(anchor))
			if best == -1 || delta < bestDelta || (delta == bestDelta && trade.ID < trades[best].ID) {
				best = i
				bestDelta = delta
			}
		}
		if best == -1 {
			continue
		}
		trade := trades[best]
		claimed[trade.ID] = struct{}{}
		delta := trade.CompletedAt.Sub(anchor)
		pairs = append(pairs, Pair{
			P2P:            trade,
			Gate:           gate,
			Delta:          delta,
			TimeDifference: TimeDifferenceMinutes(delta),
		})
	}
	return pairs
}

// AmountsAgree checks the USDT amount and the RUB total of both legs
// against a relative tolerance of the gate side.
func AmountsAgree(trade models.P2PTransaction, gate models.GateTransaction, tolerance decimal.Decimal) bool {
	return withinRelative(trade.Amount, gate.AmountUsdt, tolerance) &&
		withinRelative(trade.TotalRub, gate.TotalRub, tolerance)
}

// CandidatesForGate ranks trades of the gate's owner around the gate timestamp.
func CandidatesForGate(gate models.GateTransaction, p2ps []models.P2PTransaction, window time.Duration, settings Settings) []Candidate {
	anchor := GateTimestamp(gate)
	candidates := make([]Candidate, 0, len(p2ps))
	for i := range p2ps {
		trade := p2ps[i]
		if trade.UserID != gate.UserID {
			continue
		}
		delta := trade.CompletedAt.Sub(anchor)
		if absDuration(delta) > window {
			continue
		}
		candidates = append(candidates, Candidate{
			Side:            SideP2P,
			TransactionID:   trade.ID,
			Timestamp:       trade.CompletedAt,
			DeltaSeconds:    int64(delta / time.Second),
			TimeDifference:  TimeDifferenceMinutes(delta),
			WithinTolerance: absDuration(delta) <= settings.Tolerance,
			AmountsAgree:    AmountsAgree(trade, gate, settings.AmountTolerance),
			P2P:             &trade,
		})
	}
	rankCandidates(candidates)
	return candidates
}

// CandidatesForP2P ranks gate payouts of the trade's owner around completed_at.
func CandidatesForP2P(trade models.P2PTransaction, gates []models.GateTransaction, window time.Duration, settings Settings) []Candidate {
	candidates := make([]Candidate, 0, len(gates))
	for i := range gates {
		gate := gates[i]
		if gate.UserID != trade.UserID {
			continue
		}
		stamp := GateTimestamp(gate)
		delta := trade.CompletedAt.Sub(stamp)
		if absDuration(delta) > window {
			continue
		}
		candidates = append(candidates, Candidate{
			Side:            SideGate,
			TransactionID:   gate.ID,
			Timestamp:       stamp,
			DeltaSeconds:    int64(delta / time.Second),
			TimeDifference:  TimeDifferenceMinutes(delta),
			WithinTolerance: gate.ApprovedAt != nil && absDuration(delta) <= settings.Tolerance,
			AmountsAgree:    AmountsAgree(trade, gate, settings.AmountTolerance),
			Gate:            &gate,
		})
	}
	rankCandidates(candidates)
	return candidates
}

func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		left, right := absSeconds(candidates[i].DeltaSeconds), absSeconds(candidates[j].DeltaSeconds)
		if left != right {
			return left < right
		}
		return candidates[i].TransactionID < candidates[j].TransactionID
	})
}

func groupCompleted(p2ps []models.P2PTransaction) map[string][]models.P2PTransaction {
	byOwner := make(map[string][]models.P2PTransaction)
	for _, trade := range p2ps {
		if trade.Status != models.P2PStatusCompleted {
			continue
		}
		byOwner[trade.UserID] = append(byOwner[trade.UserID], trade)
	}
	for owner := range byOwner {
		trades := byOwner[owner]
		sort.SliceStable(trades, func(i, j int) bool {
			if !trades[i].CompletedAt.Equal(trades[j].CompletedAt) {
				return trades[i].CompletedAt.Before(trades[j].CompletedAt)
			}
			return trades[i].ID < trades[j].ID
		})
	}
	return byOwner
}

func withinRelative(value, reference, tolerance decimal.Decimal) bool {
	if reference.IsZero() {
		return value.IsZero()
	}
	return value.Sub(reference).Abs().LessThanOrEqual(tolerance.Mul(reference.Abs()))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func absSeconds(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
