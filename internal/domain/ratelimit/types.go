// Package ratelimit provides sliding-window rate limiting for tool
// calls, backed by a shared key-value store.
package ratelimit

import (
	"context"
	"strings"
	"time"
)

// IdentifierType selects a component of the rate-limit key.
type IdentifierType string

const (
	// IdentifierIP keys the counter by client IP.
	IdentifierIP IdentifierType = "IP"
	// IdentifierUser keys the counter by the x-user-id header, falling
	// back to the client IP.
	IdentifierUser IdentifierType = "USER"
	// IdentifierTool keys the counter by tool name.
	IdentifierTool IdentifierType = "TOOL"
)

// Config defines the rate limiting parameters for tool calls.
type Config struct {
	// Enabled controls whether rate limiting runs at all.
	Enabled bool

	// Limit is the number of allowed tools/call requests per window.
	Limit int

	// WindowSeconds is the window length in seconds.
	WindowSeconds int

	// IdentifierTypes is the ordered set of key components.
	IdentifierTypes []IdentifierType
}

// DefaultConfig returns the config applied when none is supplied:
// enabled, 100 requests per 300 seconds, keyed by IP and tool.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Limit:           100,
		WindowSeconds:   300,
		IdentifierTypes: []IdentifierType{IdentifierIP, IdentifierTool},
	}
}

// Cell is the stored counter state for one identifier.
type Cell struct {
	// Count is the number of requests seen in the current window.
	// Counts never decrement; cells expire via TTL.
	Count int `json:"count"`

	// ResetAt is the window end as unix milliseconds.
	ResetAt int64 `json:"resetAt"`
}

// Result is the outcome of a rate-limit check.
type Result struct {
	// Allowed is false when the limit has been reached.
	Allowed bool

	// Tool is the tool name the check applied to.
	Tool string

	// Count is the counter value after the check.
	Count int

	// Limit echoes the configured limit.
	Limit int

	// ResetAt is the window end as unix milliseconds.
	ResetAt int64

	// ResetInSeconds is the whole seconds until the window resets.
	// Only meaningful when Allowed is false.
	ResetInSeconds int
}

// Store is the shared key-value store backing rate-limit cells.
//
// Implementations are not required to be atomic: the limiter's
// read-modify-write tolerates minor over-count under concurrent access,
// because cells are last-write-wins and TTL-bounded.
type Store interface {
	// Get returns the value under key, with found=false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set writes value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// keyPrefix is the base prefix for all rate-limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns the store key for an identifier.
// Format: "ratelimit:<identifier-join>".
func FormatKey(parts []string) string {
	return keyPrefix + ":" + strings.Join(parts, ":")
}
