package validator

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"reconciler/internal/reconcile"
)

const (
	MaxSearchLength = 100
	MaxPageSize     = 500
	MaxWindow       = 24 * time.Hour
)

var transactionIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,64}$`)

func ValidateTransactionID(field, id string) error {
	if !transactionIDRegex.MatchString(id) {
		return reconcile.Invalid(field, "must be 1-64 letters, digits or _.:-")
	}
	return nil
}

func ValidateSearch(search string) error {
	if utf8.RuneCountInString(strings.TrimSpace(search)) > MaxSearchLength {
		return reconcile.Invalid("search", "is too long")
	}
	return nil
}

func ValidateDateRange(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return reconcile.Invalid("date_range", "start must not be after end")
	}
	return nil
}

func ValidatePageSize(limit int) error {
	if limit < 1 || limit > MaxPageSize {
		return reconcile.Invalid("limit", "must be between 1 and 500")
	}
	return nil
}

// ValidateWindow bounds the candidate search window; zero means the
// configured default.
func ValidateWindow(window time.Duration) error {
	if window < 0 || window > MaxWindow {
		return reconcile.Invalid("window", "must be between 0 and 24h")
	}
	return nil
}
