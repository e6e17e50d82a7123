// Package errors provides structured error types for fyn.
//
// This package defines error codes and types that enable:
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages in the CLI
//   - Error wrapping with context preservation
//   - Reporting every fatal resolve failure at once via [Aggregate]
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures (manifest, lock file, names)
//   - NOT_FOUND_*: Resource not found
//   - NETWORK_*: Network-related errors
//   - resolver codes: UNSATISFIABLE, META_FETCH, PLATFORM_MISMATCH, LOCK_ONLY_MISS
//
// # Usage
//
//	err := errors.New(errors.ErrCodeUnsatisfiable, "no version of %s satisfies %s", name, semver)
//	if errors.Is(err, errors.ErrCodeUnsatisfiable) {
//	    // Handle resolve error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeMetaFetch, origErr, "fetch packument %s", name)
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidLock     Code = "INVALID_LOCK"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	ErrCodeFileNotFound    Code = "FILE_NOT_FOUND"

	// Network errors
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeTimeout     Code = "TIMEOUT"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Authentication errors
	ErrCodeUnauthorized Code = "UNAUTHORIZED"
	ErrCodeForbidden    Code = "FORBIDDEN"

	// Resolution errors
	ErrCodeUnsatisfiable    Code = "UNSATISFIABLE"
	ErrCodeMetaFetch        Code = "META_FETCH"
	ErrCodePlatformMismatch Code = "PLATFORM_MISMATCH"
	ErrCodeLockOnlyMiss     Code = "LOCK_ONLY_MISS"

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
// It unwraps the error chain, including aggregates, looking for an *Error
// with a matching code.
func Is(err error, code Code) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	switch x := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range x.Unwrap() {
			if Is(inner, code) {
				return true
			}
		}
	case interface{ Unwrap() error }:
		return Is(x.Unwrap(), code)
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
// For aggregates, returns one line per collected error.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var agg *Aggregate
	if errors.As(err, &agg) {
		lines := make([]string, len(agg.Errs))
		for i, e := range agg.Errs {
			lines[i] = UserMessage(e)
		}
		return strings.Join(lines, "\n")
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}

// Aggregate collects independent failures from one operation so that every
// cause is reported, not only the first.
type Aggregate struct {
	Errs []error
}

// Error lists every collected error, one per line.
func (a *Aggregate) Error() string {
	switch len(a.Errs) {
	case 0:
		return "no errors"
	case 1:
		return a.Errs[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(a.Errs))
	for _, e := range a.Errs {
		b.WriteString("\n  * ")
		b.WriteString(e.Error())
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (a *Aggregate) Unwrap() []error { return a.Errs }

// Join returns nil for no errors, the error itself for one, and an
// *Aggregate otherwise. Nil entries are ignored.
func Join(errs ...error) error {
	var kept []error
	for _, e := range errs {
		if e != nil {
			kept = append(kept, e)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Aggregate{Errs: kept}
}
