package errors

import (
	"errors"
	"testing"
)

func TestErrorWrapper(t *testing.T) {
	wrapper := NewWrapper("session", "find_or_create")

	t.Run("Wrap returns nil for nil error", func(t *testing.T) {
		result := wrapper.Wrap(nil, "lookup failed")
		if result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})

	t.Run("Wrap creates WrappedError", func(t *testing.T) {
		baseErr := errors.New("database is locked")
		wrapped := wrapper.Wrap(baseErr, "lookup failed")

		if wrapped == nil {
			t.Fatal("expected non-nil wrapped error")
		}

		wrappedErr, ok := wrapped.(*WrappedError)
		if !ok {
			t.Fatal("expected WrappedError type")
		}

		if wrappedErr.Module != "session" {
			t.Errorf("expected module 'session', got '%s'", wrappedErr.Module)
		}

		if wrappedErr.Operation != "find_or_create" {
			t.Errorf("expected operation 'find_or_create', got '%s'", wrappedErr.Operation)
		}

		if wrappedErr.Message != "lookup failed" {
			t.Errorf("expected message 'lookup failed', got '%s'", wrappedErr.Message)
		}

		if !errors.Is(wrapped, baseErr) {
			t.Error("wrapped error should unwrap to base error")
		}
	})

	t.Run("Wrapf formats message", func(t *testing.T) {
		baseErr := errors.New("not found")
		wrapped := wrapper.Wrapf(baseErr, "no session for %s", "U1")

		wrappedErr := wrapped.(*WrappedError)
		expected := "no session for U1"
		if wrappedErr.Message != expected {
			t.Errorf("expected '%s', got '%s'", expected, wrappedErr.Message)
		}
	})

	t.Run("Error format without message", func(t *testing.T) {
		err := NewWrapper("nlu", "run_actions").Wrap(ErrTimeout, "")
		want := "[nlu:run_actions] operation timed out"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
		if !IsTimeout(err) {
			t.Error("expected wrapped error to match ErrTimeout")
		}
	})
}
