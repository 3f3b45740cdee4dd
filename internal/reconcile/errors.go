package reconcile

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyMatched      = errors.New("already matched")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid workflow transition")
	ErrSameSide            = errors.New("target must be on the opposite side")
)

// ValidationError reports a malformed filter or payload field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AlreadyMatched wraps ErrAlreadyMatched with the offending transaction.
func AlreadyMatched(side Side, id string) error {
	return fmt.Errorf("%w: %s transaction %s", ErrAlreadyMatched, side, id)
}

func NotFound(side Side, id string) error {
	return fmt.Errorf("%w: %s transaction %s", ErrTransactionNotFound, side, id)
}
