// Package outbound defines the outbound port interfaces of the
// guardrails engine. Adapters under internal/adapter/outbound implement
// them; the service layer depends only on these interfaces.
package outbound

import (
	"context"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/audit"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/policy"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/threat"
)

// PolicyStore fetches guardrail and audit policies from the policy
// backend.
type PolicyStore interface {
	// FetchGuardrailPolicies returns the active guardrail policies in
	// their normalized internal form. A fetch failure is fatal for the
	// calling request and must be surfaced.
	FetchGuardrailPolicies(ctx context.Context) ([]policy.Policy, error)

	// FetchAuditPolicies returns audit policies keyed by lowercased
	// resource name. Failures degrade to an empty map and are logged by
	// the implementation, never surfaced.
	FetchAuditPolicies(ctx context.Context) (map[string]audit.Policy, error)
}

// ScanResult is the verdict of one remote scanner.
type ScanResult struct {
	ScannerName string                 `json:"scanner_name"`
	IsValid     bool                   `json:"is_valid"`
	RiskScore   float64                `json:"risk_score"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// ScanResponse aggregates the fan-out to the remote scanner service.
// Result ordering is not guaranteed.
type ScanResponse struct {
	Results      []ScanResult
	FailureCount int
}

// Scanner is the remote content scanner service.
type Scanner interface {
	// Scan runs the text through the named scanners concurrently under
	// a shared deadline. Individual scanner failures are counted, not
	// surfaced; the returned error covers input rejection only.
	Scan(ctx context.Context, text string, scanners []string) (ScanResponse, error)
}

// ThreatReporter delivers malicious events to the threat backend.
type ThreatReporter interface {
	// Report posts one event. Failures are logged by the
	// implementation and returned for observability, but callers run
	// reports detached and never propagate the error.
	Report(ctx context.Context, ev threat.Event) error
}

// LLMClient calls the LLM endpoint used by the metadata auditor.
type LLMClient interface {
	// Complete sends the system prompt and returns the first choice's
	// message content.
	Complete(ctx context.Context, systemPrompt string) (string, error)
}

// TaskRunner schedules detached work that must survive the request
// lifecycle (threat reports, metadata audits, mirror tees).
type TaskRunner interface {
	// Go runs fn on a background context. fn's panics and failures are
	// contained; Go never blocks the caller.
	Go(name string, fn func(ctx context.Context))
}
