package guardrails

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrRequestBlocked is returned when validation blocks a payload.
	ErrRequestBlocked = errors.New("request blocked")

	// ErrServerUnreachable is returned when the guardrails server cannot
	// be contacted and the client runs in fail-closed mode.
	ErrServerUnreachable = errors.New("server unreachable")
)

// RequestBlockedError is returned when validation blocks a payload. It
// carries the block reason and the validator metadata.
type RequestBlockedError struct {
	// Reason explains why the payload was blocked.
	Reason string
	// Metadata carries validator-specific details, such as the policy ID.
	Metadata map[string]any
}

// Error returns a human-readable description of the block.
func (e *RequestBlockedError) Error() string {
	if id, ok := e.Metadata["policy_id"].(string); ok && id != "" {
		return fmt.Sprintf("blocked by policy %s: %s", id, e.Reason)
	}
	return fmt.Sprintf("blocked: %s", e.Reason)
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrRequestBlocked).
func (e *RequestBlockedError) Is(target error) bool {
	return target == ErrRequestBlocked
}

// ServerError is returned for non-2xx responses from the guardrails
// server.
type ServerError struct {
	// StatusCode is the HTTP status returned by the server.
	StatusCode int
	// Message is the server's error message, when available.
	Message string
}

// Error returns a human-readable description of the server error.
func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("guardrails server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("guardrails server returned %d", e.StatusCode)
}
