package errors

import (
	"errors"
	"fmt"
)

// Re-export the standard library helpers so callers only need one import.
var (
	Is = errors.Is
	As = errors.As
)

// Error codes shared across the module. Packages that need a code not
// listed here define their own constants in their own package instead of
// growing this list unboundedly.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeForbidden        = "FORBIDDEN"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInternal         = "INTERNAL"
	CodeUnavailable      = "UNAVAILABLE"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
)

// AppError is the standard error type for this module. It carries a
// stable machine-readable Code alongside a human-readable Message and an
// optional wrapped Cause.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code, message, and optional cause.
func New(code, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// Wrap attaches context to an existing error, preserving its code if it is
// already an AppError, otherwise tagging it CodeInternal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return New(ae.Code, message+": "+ae.Message, ae.Cause)
	}
	return New(CodeInternal, message, err)
}

// NotFound creates a CodeNotFound AppError.
func NotFound(message string, cause error) *AppError {
	return New(CodeNotFound, message, cause)
}

// Conflict creates a CodeConflict AppError.
func Conflict(message string, cause error) *AppError {
	return New(CodeConflict, message, cause)
}

// Forbidden creates a CodeForbidden AppError.
func Forbidden(message string, cause error) *AppError {
	return New(CodeForbidden, message, cause)
}

// InvalidArgument creates a CodeInvalidArgument AppError.
func InvalidArgument(message string, cause error) *AppError {
	return New(CodeInvalidArgument, message, cause)
}

// Internal creates a CodeInternal AppError.
func Internal(message string, cause error) *AppError {
	return New(CodeInternal, message, cause)
}

// Unavailable creates a CodeUnavailable AppError.
func Unavailable(message string, cause error) *AppError {
	return New(CodeUnavailable, message, cause)
}

// CodeOf returns the AppError code for err, or "" if err is not an
// AppError (or is nil).
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
