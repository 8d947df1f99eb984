// Package errors provides structured error types for the vallo pipeline.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the pipeline stages and the CLI
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Geometric and structural failures (PROJECTION_ERROR, INSUFFICIENT_SEEDS,
// UNMAPPED_CELL) abort a run. COVERAGE and OVERLAP_INVARIANT are the codes of
// plausibility findings; they only surface as errors when a caller asks for
// strict checking. MISSING_DEMAND is returned by the allocator when the abort
// policy is selected.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInsufficientSeeds, "need 3 unique seeds, got %d", n)
//	if errors.Is(err, errors.ErrCodeInsufficientSeeds) {
//	    // Handle degenerate input
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeProjection, origErr, "parse %q", crs)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidFormat Code = "INVALID_FORMAT"
	ErrCodeInvalidPath   Code = "INVALID_PATH"
	ErrCodeFileNotFound  Code = "FILE_NOT_FOUND"

	// Fatal pipeline errors
	ErrCodeProjection        Code = "PROJECTION_ERROR"
	ErrCodeInsufficientSeeds Code = "INSUFFICIENT_SEEDS"
	ErrCodeUnmappedCell      Code = "UNMAPPED_CELL"

	// Plausibility findings
	ErrCodeCoverage         Code = "COVERAGE"
	ErrCodeOverlapInvariant Code = "OVERLAP_INVARIANT"

	// Allocation errors
	ErrCodeMissingDemand Code = "MISSING_DEMAND"

	// Diagnostic rendering failures
	ErrCodeRender Code = "RENDER_ERROR"

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
// It unwraps the error chain looking for an *Error with a matching code.
// Joined errors (errors.Join) match when any member carries the code.
func Is(err error, code Code) bool {
	for err != nil {
		switch e := err.(type) {
		case *Error:
			if e.Code == code {
				return true
			}
			err = e.Cause
		case interface{ Unwrap() []error }:
			for _, member := range e.Unwrap() {
				if Is(member, code) {
					return true
				}
			}
			return false
		case interface{ Unwrap() error }:
			err = e.Unwrap()
		default:
			return false
		}
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
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether the code aborts a pipeline run regardless of the
// strictness setting.
func IsFatal(code Code) bool {
	switch code {
	case ErrCodeProjection, ErrCodeInsufficientSeeds, ErrCodeUnmappedCell, ErrCodeInternal:
		return true
	}
	return false
}
