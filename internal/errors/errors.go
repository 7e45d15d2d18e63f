// Package errors provides domain-specific error types and sentinel errors
// shared by the session store, dispatch router, NLU engines and webhook layer.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrNotFound indicates a requested resource was never present.
	ErrNotFound = errors.New("resource not found")

	// ErrSessionDeleted indicates a session existed but has been deleted.
	// It is intentionally distinct from ErrNotFound.
	ErrSessionDeleted = errors.New("session deleted")

	// ErrInvalidInput indicates the caller provided invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimitExceeded indicates rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrSignatureMissing indicates a webhook request carried no signature header.
	ErrSignatureMissing = errors.New("request signature missing")

	// ErrSignatureMismatch indicates a webhook signature did not match the body.
	ErrSignatureMismatch = errors.New("request signature mismatch")

	// ErrCalloutTokenMismatch indicates an X-SF-Callouts token did not match the verify token.
	ErrCalloutTokenMismatch = errors.New("callout token mismatch")

	// ErrEngineUnavailable indicates no NLU engine is configured.
	ErrEngineUnavailable = errors.New("nlu engine unavailable")

	// ErrSendFailed indicates the messaging platform rejected an outbound request.
	ErrSendFailed = errors.New("send failed")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsSessionDeleted reports whether err is or wraps ErrSessionDeleted.
func IsSessionDeleted(err error) bool { return errors.Is(err, ErrSessionDeleted) }

// IsRateLimitExceeded reports whether err is or wraps ErrRateLimitExceeded.
func IsRateLimitExceeded(err error) bool { return errors.Is(err, ErrRateLimitExceeded) }

// IsInvalidInput reports whether err is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsTimeout reports whether err is or wraps ErrTimeout.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsSignatureError reports whether err is any webhook authentication failure.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrSignatureMissing) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrCalloutTokenMismatch)
}

// ValidationError represents input validation failures.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// APIError represents a non-2xx response from the messaging platform.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("graph api error (endpoint=%s, status=%d): %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("graph api error (endpoint=%s, status=%d)", e.Endpoint, e.StatusCode)
}

// Unwrap lets errors.Is match ErrSendFailed.
func (e *APIError) Unwrap() error {
	return ErrSendFailed
}

// NewAPIError creates a new API error.
func NewAPIError(endpoint string, statusCode int, body string) *APIError {
	return &APIError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Body:       body,
	}
}
