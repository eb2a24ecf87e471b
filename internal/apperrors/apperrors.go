// Package apperrors lists the errors the engine reports to its callers.
//
// Packages wrap these sentinels with context using fmt.Errorf("%w: ...") and
// callers match them with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
)

// Validation. Returned before any shared state is touched.
var ErrValidation = errors.New("validation failed")

// Business rule violations. Never retried.
var (
	ErrBikeNotFound            = errors.New("bike not found")
	ErrBikeUnavailable         = errors.New("bike not available")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrReservationExpired      = errors.New("reservation expired")
	ErrActiveReservationExists = errors.New("customer already has an active reservation")
	ErrRideNotFound            = errors.New("ride not found")
	ErrRideInProgress          = errors.New("ride in progress")
	ErrRideAlreadyEnded        = errors.New("ride already ended")
	ErrNotOwner                = errors.New("not owner")
	ErrDockNotFound            = errors.New("dock not found")
	ErrDockFull                = errors.New("dock full")
	ErrWalletNotFound          = errors.New("wallet not found")
	ErrNoActivePricingRule     = errors.New("no active pricing rule")
	ErrDuplicatePosting        = errors.New("transaction already posted")
	ErrCustomerNotFound        = errors.New("customer not found")
	ErrForbidden               = errors.New("forbidden")
	ErrPaymentDeclined         = errors.New("payment declined")
)

// ErrTransientStoreConflict is returned once a unit of work has exhausted its
// retries on lock contention or serialization failures.
var ErrTransientStoreConflict = errors.New("transient store conflict")

// ValidationError describes one malformed input field.
// It matches ErrValidation, and Err when set.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
