package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapAgentError wraps capture agent failures with user-friendly context
func WrapAgentError(err error, agent string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Capture agent %s is not usable", agent),
		Reason:  extractAgentReason(err),
		Hint:    "The capture container must be running before a capture can start",
		Try:     "docker compose up -d",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Durations use Go syntax (2s, 1m30s); agents use docker://, podman://, ssh:// or local",
		Try:     "proxyja4 config init --output proxyja4.yaml",
		Err:     err,
	}
}

func extractAgentReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "not running") {
		return "Container is not running"
	}
	if strings.Contains(errStr, "executable file not found") {
		return "Container runtime CLI is not installed"
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Agent did not respond within timeout period"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "handshake") {
		return "Could not open a control connection to the agent"
	}

	return "Agent communication failed"
}
