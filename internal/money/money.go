package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

const (
	// USDTScale and RUBScale are the decimal places accepted from the feeds.
	USDTScale = 6
	RUBScale  = 2
	RateScale = 6
)

// ParseAmount parses a plain decimal string ("1234.50"). Exponent notation
// and signs other than a leading '+' are rejected.
func ParseAmount(input string, maxScale int) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	switch trimmed[0] {
	case '-':
		return decimal.Zero, ErrNegativeAmount
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return decimal.Zero, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
		if fracPart == "" || !isDigits(fracPart) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if len(fracPart) > maxScale {
		return decimal.Zero, ErrTooManyDecimals
	}
	normalized := wholePart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

// ParsePositive is ParseAmount that also rejects zero.
func ParsePositive(input string, maxScale int) (decimal.Decimal, error) {
	value, err := ParseAmount(input, maxScale)
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return value, nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
