// Package validation contains the validation context and result types
// shared by all validators, plus the local deterministic matchers.
package validation

import (
	"encoding/json"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/audit"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/policy"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/ratelimit"
)

// Metadata keys used across validators.
const (
	MetaPolicyID = "policy_id"
	MetaRuleType = "rule_type"
	MetaPIIType  = "pii_type"
)

// Context carries everything a single validation call needs. It is
// constructed per call and only mutated by recording the redacted
// payload.
type Context struct {
	// IP is the client IP as seen by the gateway.
	IP string

	// Endpoint is the ingress path the traffic arrived on.
	Endpoint string

	// Method is the HTTP method of the mirrored traffic.
	Method string

	// RequestHeaders / ResponseHeaders are the mirrored HTTP headers.
	RequestHeaders  map[string]string
	ResponseHeaders map[string]string

	// StatusCode is the mirrored HTTP status code.
	StatusCode int

	// RequestPayload / ResponsePayload are the raw MCP payloads.
	RequestPayload  string
	ResponsePayload string

	// MCPServerName optionally names the MCP server behind this
	// traffic; audit policies may target the whole server.
	MCPServerName string

	// Policies are the active guardrail policies for this call.
	Policies []policy.Policy

	// AuditPolicies maps lowercased resource names to audit decisions.
	AuditPolicies map[string]audit.Policy

	// HasAuditRules short-circuits audit evaluation when false.
	HasAuditRules bool

	// RateLimit configures tool-call rate limiting for this call.
	RateLimit ratelimit.Config
}

// Result is the outcome of one validator, and of the whole pipeline.
//
// Invariants: a blocked result always carries a Reason; a modified
// result is always allowed and carries the ModifiedPayload.
type Result struct {
	Allowed         bool                   `json:"allowed"`
	Modified        bool                   `json:"modified"`
	ModifiedPayload string                 `json:"modifiedPayload,omitempty"`
	Reason          string                 `json:"reason,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// Allow returns a plain allow result.
func Allow() Result {
	return Result{Allowed: true}
}

// Block returns a block result with the given reason and metadata.
func Block(reason string, metadata map[string]interface{}) Result {
	return Result{Allowed: false, Reason: reason, Metadata: metadata}
}

// Redact returns an allow-with-modification result.
func Redact(modifiedPayload string, metadata map[string]interface{}) Result {
	return Result{
		Allowed:         true,
		Modified:        true,
		ModifiedPayload: modifiedPayload,
		Metadata:        metadata,
	}
}

// BlockedResponseCode is the JSON-RPC error code for blocked requests.
const BlockedResponseCode = -32000

// BlockedResponseMessage is the fixed error message for blocked
// requests.
const BlockedResponseMessage = "Request blocked by security policy"

// blockedError is the error member of a BlockedResponse.
type blockedError struct {
	Code    int              `json:"code"`
	Message string           `json:"message"`
	Data    blockedErrorData `json:"data"`
}

type blockedErrorData struct {
	Reason          string `json:"reason"`
	OriginalPayload string `json:"original_payload"`
}

// BlockedResponse is the JSON-RPC error envelope returned to the caller
// (and attached to threat reports) when a payload is blocked.
type BlockedResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	Error   blockedError `json:"error"`
}

// NewBlockedResponse builds the canonical blocked-response envelope.
func NewBlockedResponse(reason, originalPayload string) BlockedResponse {
	return BlockedResponse{
		JSONRPC: "2.0",
		Error: blockedError{
			Code:    BlockedResponseCode,
			Message: BlockedResponseMessage,
			Data: blockedErrorData{
				Reason:          reason,
				OriginalPayload: originalPayload,
			},
		},
	}
}

// JSON renders the blocked response as its wire form.
func (b BlockedResponse) JSON() string {
	raw, err := json.Marshal(b)
	if err != nil {
		return `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Request blocked by security policy"}}`
	}
	return string(raw)
}
