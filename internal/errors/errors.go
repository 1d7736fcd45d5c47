// Package errors provides the typed error system used across the cache
// layer. Cache failures are never surfaced to end users; these types exist
// so that components can classify a failure (unavailable store, corrupt
// payload, missing entry) and decide between fail-open degradation and
// retry on the next background cycle.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines the category of error for proper handling and logging.
type ErrorType string

const (
	// Infrastructure errors
	ErrorTypeUnavailable   ErrorType = "UNAVAILABLE"   // backing store unreachable or circuit open
	ErrorTypeTimeout       ErrorType = "TIMEOUT"       // store call exceeded its deadline
	ErrorTypeSerialization ErrorType = "SERIALIZATION" // payload could not be encoded or decoded

	// Data errors
	ErrorTypeNotFound ErrorType = "NOT_FOUND" // entry or tracked entity does not exist
	ErrorTypeConflict ErrorType = "CONFLICT"  // durable-store conditional update rejected

	// Everything else
	ErrorTypeInternal ErrorType = "INTERNAL"
)

// CacheError is the single error type used by the cache layer.
type CacheError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Operation string    `json:"operation"` // the operation that failed (e.g. "kvstore.Get")
	Key       string    `json:"key"`       // the cache key involved, if any
	Retryable bool      `json:"retryable"` // safe to retry on the next scheduled cycle
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s:%s] %s: %s (key=%s)", e.Type, e.Code, e.Operation, e.Message, e.Key)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Operation, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// WithKey returns a copy of the error annotated with the cache key.
func (e *CacheError) WithKey(key string) *CacheError {
	clone := *e
	clone.Key = key
	return &clone
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

// NewUnavailable reports that the backing store could not serve the call.
// These are always retryable: the caller degrades to a miss and the next
// request or scheduled run tries again.
func NewUnavailable(operation string, cause error) *CacheError {
	return &CacheError{
		Type:      ErrorTypeUnavailable,
		Code:      "STORE_UNAVAILABLE",
		Message:   "backing store unavailable",
		Operation: operation,
		Retryable: true,
		Cause:     cause,
	}
}

// NewTimeout reports a store call that exceeded its deadline.
func NewTimeout(operation string, cause error) *CacheError {
	return &CacheError{
		Type:      ErrorTypeTimeout,
		Code:      "STORE_TIMEOUT",
		Message:   "store call timed out",
		Operation: operation,
		Retryable: true,
		Cause:     cause,
	}
}

// NewSerialization reports a payload that could not be encoded or decoded.
// Not retryable: the stale entry is superseded on the next write.
func NewSerialization(operation string, cause error) *CacheError {
	return &CacheError{
		Type:      ErrorTypeSerialization,
		Code:      "BAD_PAYLOAD",
		Message:   "payload serialization failed",
		Operation: operation,
		Cause:     cause,
	}
}

// NewNotFound reports a missing entry where presence was required, such as
// extending an offer that is no longer tracked.
func NewNotFound(operation, message string) *CacheError {
	return &CacheError{
		Type:      ErrorTypeNotFound,
		Code:      "NOT_FOUND",
		Message:   message,
		Operation: operation,
	}
}

// NewConflict reports a durable-store conditional update that was rejected,
// typically because the record left the expected state.
func NewConflict(operation, message string) *CacheError {
	return &CacheError{
		Type:      ErrorTypeConflict,
		Code:      "STATE_CONFLICT",
		Message:   message,
		Operation: operation,
	}
}

// NewInternal wraps an unexpected failure.
func NewInternal(operation string, cause error) *CacheError {
	return &CacheError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL",
		Message:   "internal error",
		Operation: operation,
		Cause:     cause,
	}
}

// Wrap attaches an operation to an arbitrary error, preserving an existing
// CacheError classification when there is one.
func Wrap(operation string, err error) *CacheError {
	if err == nil {
		return nil
	}
	var ce *CacheError
	if errors.As(err, &ce) {
		clone := *ce
		clone.Operation = operation
		clone.Cause = ce
		return &clone
	}
	return NewInternal(operation, err)
}

// ============================================================================
// CLASSIFICATION HELPERS
// ============================================================================

// IsNotFound reports whether the error is a NOT_FOUND cache error.
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsUnavailable reports whether the error indicates the store is down.
func IsUnavailable(err error) bool {
	return isType(err, ErrorTypeUnavailable)
}

// IsTimeout reports whether the error is a store timeout.
func IsTimeout(err error) bool {
	return isType(err, ErrorTypeTimeout)
}

// IsRetryable reports whether the failed operation is safe to retry.
func IsRetryable(err error) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

func isType(err error, t ErrorType) bool {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
