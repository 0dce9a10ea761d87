// Package domainerrors carries the error taxonomy shared by the ledger,
// attestation and privacy services. Services return *Error values; the
// transport layer maps Code to a status without inspecting messages.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies an error class.
type Code string

const (
	// CodeNotFound is a lookup miss. Recoverable.
	CodeNotFound Code = "not_found"
	// CodeInvalidRecord is a caller contract violation: bad configuration,
	// unknown signing party or malformed batch. Never retried.
	CodeInvalidRecord Code = "invalid_record"
	// CodeStorage is a lock or serialization failure inside a store.
	CodeStorage Code = "storage_error"
	// CodeTamperDetected means a ledger integrity check failed. It must be
	// propagated and investigated, never repaired automatically.
	CodeTamperDetected Code = "tamper_detected"
	// CodeBudgetExceeded means a privacy budget would be overspent.
	CodeBudgetExceeded Code = "budget_exceeded"
	// CodeSerialization wraps import/export encoding failures.
	CodeSerialization Code = "serialization_error"

	CodeBadRequest Code = "bad_request"
	CodeInternal   Code = "internal_error"
)

// Error is a classified error with an optional underlying cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// New creates an error with the given code and message.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under code, keeping it reachable through errors.Is/As.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the outermost *Error in err's chain, or
// CodeInternal when err carries no classification.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err is classified under code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}
