package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every aggregate. Callers match them with errors.Is.
var (
	ErrNotFound                   = errors.New("not found")
	ErrValidation                 = errors.New("validation failed")
	ErrConflict                   = errors.New("conflict")
	ErrInvalidStateTransition     = errors.New("invalid state transition")
	ErrPersistenceConflict        = errors.New("persistence conflict")
	ErrPromoExhausted             = errors.New("promo code exhausted")
	ErrPromoExpired               = errors.New("promo code expired")
	ErrPromoNotApplicable         = errors.New("promo code not applicable")
	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrInsufficientPayableBalance = errors.New("insufficient payable balance")
	ErrPaymentFailed              = errors.New("payment failed")
	ErrUnauthorized               = errors.New("unauthorized")
	ErrForbidden                  = errors.New("forbidden")
)

// DomainError decorates a sentinel with a human readable message and, for
// business-rule rejections, a machine readable reason code.
type DomainError struct {
	Err     error
	Message string
	Reason  string
}

func (e *DomainError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{Err: ErrNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewValidationError reports malformed input.
func NewValidationError(msg string) *DomainError {
	return &DomainError{Err: ErrValidation, Message: msg}
}

// NewConflictError reports a concurrent modification.
func NewConflictError(msg string) *DomainError {
	return &DomainError{Err: ErrPersistenceConflict, Message: msg}
}

// NewInvalidStateError reports a transition that is not legal from the current state.
func NewInvalidStateError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidStateTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

// NewBusinessError reports a business-rule rejection with a reason code.
func NewBusinessError(err error, reason, msg string) *DomainError {
	return &DomainError{Err: err, Reason: reason, Message: msg}
}

// NewForbiddenError reports an actor acting on something it does not own.
func NewForbiddenError(msg string) *DomainError {
	return &DomainError{Err: ErrForbidden, Message: msg}
}

// ReasonOf extracts the reason code carried by a DomainError, if any.
func ReasonOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
