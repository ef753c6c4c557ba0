package xerrors

import (
	"errors"
	"fmt"
)

// Common reusable application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized access")
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict: resource already exists")
	ErrInternal       = errors.New("internal server error")
	ErrDuplicateEntry = errors.New("duplicate entry")
)

// Billing lifecycle errors
var (
	// ErrSubscriptionExists: the owner already holds a non-terminal subscription.
	ErrSubscriptionExists = errors.New("owner already has an active or pending subscription")
	// ErrTerminalStatus: the subscription is cancelled or ended and cannot change.
	ErrTerminalStatus = errors.New("subscription is in a terminal status")
	// ErrChargeFailed: the gateway processed the charge and declined it.
	ErrChargeFailed = errors.New("charge was declined")
	// ErrGatewayUnavailable: the gateway could not be reached or answered abnormally.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap extracts the underlying wrapped error.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
