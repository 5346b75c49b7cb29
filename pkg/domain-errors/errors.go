// Package domainerrors carries coded errors across the service boundary.
//
// Stores return sentinel errors (pkg/platform/sentinel); services translate them
// into coded errors from this package so callers can branch on Code without
// depending on storage details.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	CodeNotFound               Code = "not_found"
	CodeInvalidInput           Code = "invalid_input"
	CodeForbidden              Code = "forbidden"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeInvalidTransition      Code = "invalid_transition"
	CodeIncompleteProfile      Code = "incomplete_profile"
	CodeConstraintViolation    Code = "constraint_violation"
	CodeInvariantViolation     Code = "invariant_violation"
	CodeTimeout                Code = "timeout"
	CodeInternal               Code = "internal"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
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

// New constructs a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost coded error in the chain, or "".
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// HasCode reports whether the outermost coded error in the chain carries code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the caller should re-read and retry.
func Retryable(err error) bool {
	return HasCode(err, CodeConcurrentModification)
}
