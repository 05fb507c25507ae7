package payment

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures so callers can decide whether to
// retry, surface to the buyer, or flag a bug.
type ErrorKind string

const (
	// ErrKindValidation is bad caller input. Never retried.
	ErrKindValidation ErrorKind = "validation_error"
	// ErrKindNetwork is a timeout or connection failure. Safe to retry.
	ErrKindNetwork ErrorKind = "network_error"
	// ErrKindVendor is a 4xx/5xx rejection from the gateway API.
	ErrKindVendor ErrorKind = "vendor_error"
	// ErrKindInvalidState is a business-rule violation, e.g. refunding a
	// pending transaction.
	ErrKindInvalidState ErrorKind = "invalid_state"
	// ErrKindInternal is everything else (persistence, decode bugs).
	ErrKindInternal ErrorKind = "internal_error"
)

// Error is the only error type that crosses a gateway method boundary.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidStateError(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func NewNetworkError(cause error) *Error {
	return &Error{Kind: ErrKindNetwork, Message: cause.Error(), cause: cause}
}

func NewVendorError(code, message string) *Error {
	return &Error{Kind: ErrKindVendor, Code: code, Message: message}
}

func NewInternalError(cause error) *Error {
	return &Error{Kind: ErrKindInternal, Message: cause.Error(), cause: cause}
}

// AsError normalizes any error into *Error; unknown errors become internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewInternalError(err)
}

// KindOf reports the classification of err, ErrKindInternal when unknown.
func KindOf(err error) ErrorKind {
	return AsError(err).Kind
}
