// Package errors provides categorized errors for the explorer pipeline.
//
// Every failure of an external collaborator (the generation service, the
// local store) is converted into an *Error carrying a Type and the Stage that
// issued the call, so the stage can decide its fallback from the category
// alone.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Generation means the generation service call itself failed.
	Generation
	// Parse means the service answered but the body was not decodable.
	Parse
	// Validation means the body decoded but violated the expected schema.
	Validation
	// Timeout means the call exceeded its deadline.
	Timeout
	// Cancelled means the caller's context was cancelled.
	Cancelled
	// Unavailable means the service is not configured or the breaker is open.
	Unavailable
	// RateLimit means the local limiter or the service refused the call.
	RateLimit
	// Storage means the local key-value store failed.
	Storage
	// NotFound means a lookup by identifier found nothing.
	NotFound
	// Busy means a chat submission is already in flight.
	Busy
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Generation:
		return "generation"
	case Parse:
		return "parse"
	case Validation:
		return "validation"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case Unavailable:
		return "unavailable"
	case RateLimit:
		return "rate_limit"
	case Storage:
		return "storage"
	case NotFound:
		return "not_found"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// IsGenerationFailure reports whether the type belongs to the
// GenerationFailure family, which stages always recover from locally.
func (t ErrorType) IsGenerationFailure() bool {
	switch t {
	case Generation, Parse, Validation, Timeout, Unavailable, RateLimit, Unknown:
		return true
	default:
		return false
	}
}

// IsRetryable returns whether a later call could succeed.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Generation, Timeout, RateLimit, Unavailable, Busy:
		return true
	default:
		return false
	}
}

// Error is a categorized pipeline error.
type Error struct {
	Type    ErrorType
	Stage   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error in %s: %s (caused by: %v)",
			e.Type.String(), e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error in %s: %s", e.Type.String(), e.Stage, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new Error.
func New(errType ErrorType, stage, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

// NewGenerationError wraps a failed service call.
func NewGenerationError(stage string, cause error) *Error {
	return New(Generation, stage, "generation service call failed", cause)
}

// NewParseError wraps an undecodable response body.
func NewParseError(stage string, cause error) *Error {
	return New(Parse, stage, "response is not valid JSON", cause)
}

// NewValidationError reports a schema violation.
func NewValidationError(stage, message string) *Error {
	return New(Validation, stage, message, nil)
}

// NewTimeoutError wraps a deadline overrun.
func NewTimeoutError(stage string, cause error) *Error {
	return New(Timeout, stage, "call timed out", cause)
}

// NewCancelledError reports caller cancellation.
func NewCancelledError(stage string) *Error {
	return New(Cancelled, stage, "operation cancelled", context.Canceled)
}

// NewUnavailableError reports an unconfigured or tripped service.
func NewUnavailableError(stage, reason string) *Error {
	return New(Unavailable, stage, reason, nil)
}

// NewStorageError wraps a store failure for a named slot.
func NewStorageError(slot, op string, cause error) *Error {
	return New(Storage, slot, op+" failed", cause)
}

// NewNotFoundError reports a missing identifier.
func NewNotFoundError(stage, id string) *Error {
	return New(NotFound, stage, fmt.Sprintf("%q not found", id), nil)
}

// NewBusyError reports an overlapping submission.
func NewBusyError(stage string) *Error {
	return New(Busy, stage, "a request is already in progress", nil)
}

// Categorize determines the error type from a generic error.
func Categorize(err error, stage string) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(stage)
	}

	if isTimeout(err) {
		return NewTimeoutError(stage, err)
	}

	var openErr *CircuitOpenError
	if errors.As(err, &openErr) {
		return New(Unavailable, stage, openErr.Error(), err)
	}

	if strings.Contains(strings.ToLower(err.Error()), "rate limit") ||
		strings.Contains(err.Error(), "429") {
		return New(RateLimit, stage, "rate limited", err)
	}

	return NewGenerationError(stage, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}

// GetType extracts the error type from an error.
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return Unknown
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return IsType(err, NotFound)
}
