// Package errors provides structured error types for wheelhouse.
//
// Every failure the mirror can produce carries a machine-readable [Code].
// The mirror engine decides whether an error is fatal for the run, fatal for
// a single requirement, or contained to one file, based on that code.
//
// # Error Codes
//
// The mirroring taxonomy:
//   - PROTOCOL_ERROR: the index speaks an unsupported catalog API version or
//     returned a malformed envelope; always aborts the run
//   - NO_MATCH: no file satisfies a requirement's specifier or environments
//   - INTEGRITY_ERROR: a downloaded file failed digest verification
//   - TRANSPORT_ERROR: the index or a file host could not be reached
//   - PARSE_ERROR: a requirement, marker or metadata member is malformed
//
// Supporting codes follow the INVALID_* / NOT_FOUND / INTERNAL_* convention.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNoMatch, "no version of %s matches %s", name, spec)
//	if errors.Is(err, errors.ErrCodeNoMatch) {
//	    // dependency edge resolves to nothing
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeTransport, origErr, "failed to fetch %s", url)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Mirroring taxonomy
	ErrCodeProtocol  Code = "PROTOCOL_ERROR"
	ErrCodeNoMatch   Code = "NO_MATCH"
	ErrCodeIntegrity Code = "INTEGRITY_ERROR"
	ErrCodeTransport Code = "TRANSPORT_ERROR"
	ErrCodeParse     Code = "PARSE_ERROR"

	// Input validation errors
	ErrCodeInvalidInput   Code = "INVALID_INPUT"
	ErrCodeInvalidConfig  Code = "INVALID_CONFIG"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidPath    Code = "INVALID_PATH"

	// Resource errors
	ErrCodeNotFound Code = "NOT_FOUND"
	ErrCodeTimeout  Code = "TIMEOUT"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code,
// so an outer error with a different code hides inner ones.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err aborts a whole mirror run regardless of where
// in the dependency closure it occurred.
func IsFatal(err error) bool {
	return Is(err, ErrCodeProtocol) || Is(err, ErrCodeInvalidConfig) || Is(err, ErrCodeInternal)
}
