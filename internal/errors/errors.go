// Package errors defines custom error types for upstream calls and source
// resolution. ResolveError provides context-aware error reporting with type
// classification.
package errors

import (
	"errors"
	"fmt"
)

// ResolveError represents errors that occur while talking to upstream
// providers or resolving streaming sources.
type ResolveError struct {
	Type    string
	Message string
	Cause   error
}

func (e *ResolveError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ResolveError) Unwrap() error {
	return e.Cause
}

// Error type constants
const (
	ErrorTypeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrorTypeUpstreamMalformed   = "UPSTREAM_MALFORMED"
	ErrorTypeNoSourcesFound      = "NO_SOURCES_FOUND"
	ErrorTypeInvalidRequest      = "INVALID_REQUEST"
)

// NewResolveError creates a new ResolveError
func NewResolveError(errorType, message string, cause error) *ResolveError {
	return &ResolveError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewUpstreamUnavailable creates an error for network-level upstream failures
// (timeouts, connection refused, non-2xx responses).
func NewUpstreamUnavailable(message string, cause error) *ResolveError {
	return NewResolveError(ErrorTypeUpstreamUnavailable, message, cause)
}

// NewUpstreamMalformed creates an error for responses that parsed but were
// missing required fields. Callers treat these like empty results.
func NewUpstreamMalformed(message string, cause error) *ResolveError {
	return NewResolveError(ErrorTypeUpstreamMalformed, message, cause)
}

// NewNoSourcesFound creates the terminal error for an exhausted candidate list.
func NewNoSourcesFound(message string) *ResolveError {
	return NewResolveError(ErrorTypeNoSourcesFound, message, nil)
}

// NewInvalidRequest creates an error for a missing or malformed caller
// parameter. These surface as client errors and are never retried.
func NewInvalidRequest(message string) *ResolveError {
	return NewResolveError(ErrorTypeInvalidRequest, message, nil)
}

// IsType reports whether err is a ResolveError of the given type.
func IsType(err error, errorType string) bool {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Type == errorType
	}
	return false
}

// IsInvalidRequest reports whether err classifies as a client error.
func IsInvalidRequest(err error) bool {
	return IsType(err, ErrorTypeInvalidRequest)
}
