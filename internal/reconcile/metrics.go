package reconcile

import (
	"reconciler/internal/models"

	"github.com/shopspring/decimal"
)

// MatchedPair is the minimal input of the metrics engine.
type MatchedPair struct {
	P2P  models.P2PTransaction
	Gate models.GateTransaction
}

type Report struct {
	MatchedCount          int                 `json:"matched_count"`
	UnmatchedP2PCount     int                 `json:"unmatched_p2p_count"`
	UnmatchedGateCount    int                 `json:"unmatched_gate_count"`
	GrossExpense          decimal.Decimal     `json:"gross_expense"`
	GrossIncome           decimal.Decimal     `json:"gross_income"`
	GrossProfit           decimal.Decimal     `json:"gross_profit"`
	GrossProfitPercentage decimal.Decimal     `json:"gross_profit_percentage"`
	ProfitPerOrder        decimal.Decimal     `json:"profit_per_order"`
	ExpensePerOrder       decimal.Decimal     `json:"expense_per_order"`
	WeightedSpread        decimal.Decimal     `json:"weighted_spread"`
	SpreadInUsdt          decimal.Decimal     `json:"spread_in_usdt"`
	SpreadMode            SpreadMode          `json:"spread_mode"`
	SalaryRate            decimal.NullDecimal `json:"salary_rate"`
	Salary                decimal.NullDecimal `json:"salary"`
}

// Compute aggregates matched pairs. Spread figures are taken from
// spreadPairs, which is either the same slice or a fresh correlation
// depending on the spread mode the caller runs in.
func Compute(matched, spreadPairs []MatchedPair, settings Settings) Report {
	var expense, income decimal.Decimal
	for _, pair := range matched {
		expense = expense.Add(pair.P2P.Amount.Mul(settings.Commission))
		income = income.Add(pair.Gate.TotalUsdt)
	}
	count := decimal.NewFromInt(int64(len(matched)))
	profit := income.Sub(expense)
	weighted, inUsdt := Spread(spreadPairs)
	mode := settings.SpreadMode
	if mode == "" {
		mode = SpreadPersisted
	}
	return Report{
		MatchedCount:          len(matched),
		GrossExpense:          expense,
		GrossIncome:           income,
		GrossProfit:           profit,
		GrossProfitPercentage: safeDiv(profit, expense).Mul(decimal.NewFromInt(100)),
		ProfitPerOrder:        safeDiv(profit, count),
		ExpensePerOrder:       safeDiv(expense, count),
		WeightedSpread:        weighted,
		SpreadInUsdt:          inUsdt,
		SpreadMode:            mode,
	}
}

// Spread returns the volume weighted spread and the spread expressed in USDT.
func Spread(pairs []MatchedPair) (decimal.Decimal, decimal.Decimal) {
	var weightedSum, volume, inUsdt decimal.Decimal
	for _, pair := range pairs {
		diff := pair.P2P.Price.Sub(pair.Gate.Course)
		weightedSum = weightedSum.Add(diff.Mul(pair.Gate.AmountUsdt))
		volume = volume.Add(pair.Gate.AmountUsdt)
		inUsdt = inUsdt.Add(safeDiv(diff.Mul(pair.Gate.AmountUsdt), pair.P2P.Price))
	}
	return safeDiv(weightedSum, volume), inUsdt
}

// Salary is revenue * rate / 100; an unset rate means DefaultSalaryRate.
func Salary(revenue decimal.Decimal, rate decimal.NullDecimal) (decimal.Decimal, decimal.Decimal) {
	effective := DefaultSalaryRate
	if rate.Valid {
		effective = rate.Decimal
	}
	return revenue.Mul(effective).Div(decimal.NewFromInt(100)), effective
}

func PairsFromCorrelation(pairs []Pair) []MatchedPair {
	out := make([]MatchedPair, 0, len(pairs))
	for _, pair := range pairs {
		out = append(out, MatchedPair{P2P: pair.P2P, Gate: pair.Gate})
	}
	return out
}

func safeDiv(numerator, denominator decimal.Decimal) decimal.Decimal {
	if denominator.IsZero() {
		return decimal.Zero
	}
	return numerator.Div(denominator)
}
