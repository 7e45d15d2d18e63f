package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		checkFn  func(error) bool
		expected bool
	}{
		{
			name:     "ErrNotFound is recognized",
			err:      ErrNotFound,
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "Wrapped ErrNotFound is recognized",
			err:      fmt.Errorf("session abc: %w", ErrNotFound),
			checkFn:  IsNotFound,
			expected: true,
		},
		{
			name:     "ErrSessionDeleted is not ErrNotFound",
			err:      ErrSessionDeleted,
			checkFn:  IsNotFound,
			expected: false,
		},
		{
			name:     "ErrSessionDeleted is recognized",
			err:      ErrSessionDeleted,
			checkFn:  IsSessionDeleted,
			expected: true,
		},
		{
			name:     "ErrRateLimitExceeded is recognized",
			err:      ErrRateLimitExceeded,
			checkFn:  IsRateLimitExceeded,
			expected: true,
		},
		{
			name:     "ValidationError matches ErrInvalidInput",
			err:      NewValidationError("text", "empty"),
			checkFn:  IsInvalidInput,
			expected: true,
		},
		{
			name:     "signature mismatch is a signature error",
			err:      ErrSignatureMismatch,
			checkFn:  IsSignatureError,
			expected: true,
		},
		{
			name:     "callout mismatch is a signature error",
			err:      ErrCalloutTokenMismatch,
			checkFn:  IsSignatureError,
			expected: true,
		},
		{
			name:     "timeout is not a signature error",
			err:      ErrTimeout,
			checkFn:  IsSignatureError,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.checkFn(tt.err); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	err := NewAPIError("messages", 400, `{"error":"bad"}`)

	if !errors.Is(err, ErrSendFailed) {
		t.Error("APIError should unwrap to ErrSendFailed")
	}

	want := `graph api error (endpoint=messages, status=400): {"error":"bad"}`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	noBody := NewAPIError("thread_settings", 500, "")
	if noBody.Error() != "graph api error (endpoint=thread_settings, status=500)" {
		t.Errorf("unexpected message: %s", noBody.Error())
	}
}
