package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideP2P  Side = "p2p"
	SideGate Side = "gate"
)

func ParseSide(raw string) (Side, error) {
	switch Side(raw) {
	case SideP2P, SideGate:
		return Side(raw), nil
	}
	return "", Invalid("side", "must be p2p or gate")
}

func (s Side) Opposite() Side {
	if s == SideP2P {
		return SideGate
	}
	return SideP2P
}

type MatchMode string

const (
	// ModePermissive auto-confirms anything inside the tolerance window.
	ModePermissive MatchMode = "permissive"
	// ModeStrict also requires amounts and totals to agree within AmountTolerance.
	ModeStrict MatchMode = "strict"
)

type SpreadMode string

const (
	SpreadPersisted SpreadMode = "persisted"
	SpreadRecompute SpreadMode = "recompute"
)

// Settings is shared by the matcher and the metrics engine so both use
// the same tolerance and commission.
type Settings struct {
	Tolerance       time.Duration
	Commission      decimal.Decimal
	Mode            MatchMode
	AmountTolerance decimal.Decimal
	SpreadMode      SpreadMode
	CandidateWindow time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Tolerance:       60 * time.Second,
		Commission:      decimal.RequireFromString("1.009"),
		Mode:            ModePermissive,
		AmountTolerance: decimal.RequireFromString("0.01"),
		SpreadMode:      SpreadPersisted,
		CandidateWindow: 30 * time.Minute,
	}
}

// DefaultSalaryRate is the operator commission percentage used when none is set.
var DefaultSalaryRate = decimal.NewFromInt(50)
