package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the booking engine. Match them with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrValidationFailed      = errors.New("validation failed")
	ErrConflictRetryable     = errors.New("conflict, retryable")
)

// BookingError is the user-visible failure of a booking engine operation.
// Kind is one of the sentinel errors above; SeatClass is set when the failure
// concerns a single seat class (e.g. the class that ran out of seats).
type BookingError struct {
	Kind      error
	SeatClass string
	Message   string
	Err       error
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes both the kind and the underlying cause to errors.Is / errors.As.
func (e *BookingError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Code returns a stable machine-readable code for the error kind.
func (e *BookingError) Code() string {
	return ErrorCode(e)
}

// ErrorCode maps any error onto the taxonomy codes used in API responses.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrInsufficientInventory):
		return "INSUFFICIENT_INVENTORY"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrValidationFailed):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrConflictRetryable):
		return "CONFLICT_RETRYABLE"
	default:
		return "INTERNAL"
	}
}

// NewNotFoundError builds a NotFound error.
func NewNotFoundError(format string, args ...interface{}) *BookingError {
	return &BookingError{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewValidationError builds a ValidationFailed error.
func NewValidationError(format string, args ...interface{}) *BookingError {
	return &BookingError{Kind: ErrValidationFailed, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidTransitionError builds an InvalidTransition error for from -> to.
func NewInvalidTransitionError(from, to OrderStatus, reason string) *BookingError {
	msg := fmt.Sprintf("order cannot move from %s to %s", from, to)
	if reason != "" {
		msg += ": " + reason
	}
	return &BookingError{Kind: ErrInvalidTransition, Message: msg}
}

// NewInsufficientInventoryError names the seat class that lacked capacity.
func NewInsufficientInventoryError(seatClass string, requested, available int) *BookingError {
	return &BookingError{
		Kind:      ErrInsufficientInventory,
		SeatClass: seatClass,
		Message: fmt.Sprintf("not enough %s seats (requested: %d, available: %d)",
			seatClass, requested, available),
	}
}

// NewConflictError marks err as a transient contention failure.
func NewConflictError(err error) *BookingError {
	return &BookingError{Kind: ErrConflictRetryable, Message: "concurrent update conflict", Err: err}
}
