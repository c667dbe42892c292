// Package errors provides the structured error type used across pgtop.
package errors

import (
	"errors"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig     = "CONFIG"
	ErrConnection = "CONNECTION"
	ErrQuery      = "QUERY"
	ErrTerminal   = "TERMINAL"
)

// Error represents a structured error with code, message, suggestion, and optional cause.
// It renders on a single line so it fits the status line of the monitor screen:
//
//	<What failed>: <cause> (<how to fix it>)
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Connection wraps a failure to establish or keep a host connection.
func Connection(err error, message string) *Error {
	return WrapWithCode(err, ErrConnection, message, "")
}

// Query wraps a failed query against a live connection.
func Query(err error, message string) *Error {
	return WrapWithCode(err, ErrQuery, message, "")
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		// collapse multi-line driver messages
		b.WriteString(strings.Join(strings.Fields(e.Cause.Error()), " "))
	}
	if e.Suggestion != "" {
		b.WriteString(" (")
		b.WriteString(e.Suggestion)
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var pgErr *Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

// Code returns the code of the outermost structured Error in err's chain, or "".
func Code(err error) string {
	var pgErr *Error
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
