// Package errors defines the typed error taxonomy shared by the ledger core
// and its delivery surfaces. Every error carries a stable machine code and a
// human-readable message; handlers map codes to HTTP statuses.
package errors

import (
	"errors"
	"fmt"
)

// Error codes surfaced by the ledger core.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeGuestBlocked = "GUEST_BLOCKED"
	CodeConcurrent   = "CONCURRENT_MODIFICATION"
	CodeOperation    = "OPERATION_FAILED"
	CodeInvalidState = "INVALID_STATE"
)

// Error is a typed application error.
type Error struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches two application errors by code, so sentinel-style comparisons
// with errors.Is keep working across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Validation reports bad caller input. Never retried internally.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unknown guest or account.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// GuestBlocked reports a blocked guest or account; reason is surfaced to the caller.
func GuestBlocked(reason string) *Error {
	if reason == "" {
		reason = "account is blocked"
	}
	return &Error{Code: CodeGuestBlocked, Message: reason}
}

// Concurrent reports a lost same-account race. The caller may resubmit with
// the same idempotency key.
func Concurrent(format string, args ...interface{}) *Error {
	return &Error{Code: CodeConcurrent, Message: fmt.Sprintf(format, args...), Retryable: true}
}

// OperationFailed reports a storage failure mid-commit. No partial state is
// visible, so a retry with the same idempotency key is always safe.
func OperationFailed(err error, message string) *Error {
	return &Error{Code: CodeOperation, Message: message, Retryable: true, Err: err}
}

// InvalidState reports a defensive assertion failure, e.g. invalidating a
// card twice. Indicates a logic bug, not a user-recoverable condition.
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == code
}

func IsValidation(err error) bool   { return hasCode(err, CodeValidation) }
func IsNotFound(err error) bool     { return hasCode(err, CodeNotFound) }
func IsGuestBlocked(err error) bool { return hasCode(err, CodeGuestBlocked) }
func IsConcurrent(err error) bool   { return hasCode(err, CodeConcurrent) }
func IsOperation(err error) bool    { return hasCode(err, CodeOperation) }
func IsInvalidState(err error) bool { return hasCode(err, CodeInvalidState) }

// CodeOf returns the application code of err, or empty when err is not typed.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the caller may safely resubmit the request.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
