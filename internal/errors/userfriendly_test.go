package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestUserFriendlyError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      UserFriendlyError
		contains []string
	}{
		{
			name:     "message only",
			err:      UserFriendlyError{Message: "something broke"},
			contains: []string{"something broke"},
		},
		{
			name: "all fields",
			err: UserFriendlyError{
				Message: "capture failed",
				Reason:  "timeout",
				Hint:    "check agent",
				Try:     "docker ps",
				Err:     fmt.Errorf("exec: timeout"),
			},
			contains: []string{"capture failed", "Reason: timeout", "Hint: check agent", "Try: docker ps", "Details: exec: timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("Error() = %q, want to contain %q", msg, s)
				}
			}
		})
	}
}

func TestUserFriendlyError_ErrorOmitsEmptyFields(t *testing.T) {
	err := UserFriendlyError{Message: "msg"}
	msg := err.Error()
	if strings.Contains(msg, "Reason:") || strings.Contains(msg, "Hint:") || strings.Contains(msg, "Try:") || strings.Contains(msg, "Details:") {
		t.Errorf("Error() = %q, should not contain empty fields", msg)
	}
}

func TestUserFriendlyError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("root cause")
	err := UserFriendlyError{Message: "wrapper", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("Unwrap should return the inner error")
	}
}

func TestWrapAgentError(t *testing.T) {
	if WrapAgentError(nil, "docker://capture_poc") != nil {
		t.Error("nil error should stay nil")
	}

	tests := []struct {
		cause  string
		reason string
	}{
		{"container capture_poc is not running", "Container is not running"},
		{"exec: \"docker\": executable file not found in $PATH", "Container runtime CLI is not installed"},
		{"context deadline exceeded", "Agent did not respond within timeout period"},
		{"ssh: handshake failed", "Could not open a control connection to the agent"},
		{"weird", "Agent communication failed"},
	}
	for _, tt := range tests {
		err := WrapAgentError(fmt.Errorf("%s", tt.cause), "docker://capture_poc")
		var ufe UserFriendlyError
		if !errors.As(err, &ufe) {
			t.Fatalf("expected UserFriendlyError, got %T", err)
		}
		if ufe.Reason != tt.reason {
			t.Errorf("cause %q: Reason = %q, want %q", tt.cause, ufe.Reason, tt.reason)
		}
	}
}

func TestWrapConfigError(t *testing.T) {
	if WrapConfigError(nil, "x.yaml") != nil {
		t.Error("nil error should stay nil")
	}
	err := WrapConfigError(fmt.Errorf("bad interval"), "proxyja4.yaml")
	if !strings.Contains(err.Error(), "proxyja4.yaml") || !strings.Contains(err.Error(), "bad interval") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestKindOf(t *testing.T) {
	base := NewPath(KindInstall, "copy", "/tmp/x", fmt.Errorf("permission denied"))
	wrapped := fmt.Errorf("bootstrap: %w", base)

	if KindOf(wrapped) != KindInstall {
		t.Errorf("KindOf = %q, want %q", KindOf(wrapped), KindInstall)
	}
	if !IsKind(wrapped, KindInstall) {
		t.Error("IsKind should match through wrapping")
	}
	if KindOf(fmt.Errorf("plain")) != "" {
		t.Error("plain error should have no kind")
	}
	if !errors.Is(wrapped, &Error{Kind: KindInstall}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(wrapped, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestError_Message(t *testing.T) {
	err := Errorf(KindTimeout, "wait", "no file after %s", "6s")
	if got := err.Error(); got != "TimeoutFailure: wait: no file after 6s" {
		t.Errorf("Error() = %q", got)
	}
	err = NewPath(KindPrecondition, "install", "/missing.pem", nil)
	if got := err.Error(); got != "PreconditionFailure: install /missing.pem" {
		t.Errorf("Error() = %q", got)
	}
}
