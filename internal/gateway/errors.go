// internal/gateway/errors.go
package gateway

import "fmt"

// Error is a failure talking to the payment gateway: network, auth, or a
// malformed/unexpected response. Ordinary payment declines are NOT errors;
// they come back as a ChargeResult.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s (status %d)", e.Op, e.Message, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s failed (status %d)", e.Op, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func statusError(op string, status int, message string) *Error {
	return &Error{Op: op, StatusCode: status, Message: message}
}
