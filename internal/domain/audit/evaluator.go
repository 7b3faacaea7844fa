package audit

import (
	"log/slog"
	"strings"
	"time"

	"github.com/akto-api-security/mcp-guardrails/pkg/mcp"
)

// RejectedReason is returned for resources whose audit remarks are
// "rejected".
const RejectedReason = "Resource access has been rejected by Audit Policy"

// ExpiredReason is returned when a conditional approval has expired.
const ExpiredReason = "Conditional approval has expired"

// IPNotAllowedReason is returned when the client IP matches neither the
// allowed IPs nor the allowed CIDR ranges of a conditional approval.
const IPNotAllowedReason = "Client IP is not permitted by Audit Policy"

// Evaluator applies audit policies to MCP resource accesses.
type Evaluator struct {
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewEvaluator creates an audit evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{logger: logger, now: time.Now}
}

// ResourceName extracts the audited resource name from a parsed MCP
// request. tools/call and prompts/get use the tool/prompt name,
// resources/read uses the resource URI. Other methods have no audited
// resource.
func ResourceName(req *mcp.Request) string {
	if req == nil {
		return ""
	}
	switch req.Method {
	case "tools/call", "prompts/get":
		return req.ToolName()
	case "resources/read":
		return req.ResourceURI()
	default:
		return ""
	}
}

// Evaluate looks up and applies the audit policy for a request.
//
// When serverName is set, the server-level policy (keyed by the
// lowercased server name) is consulted first; a server-level block is
// final. Otherwise the resource-level policy is looked up by the raw
// resource name. Resource-level lookup is deliberately case-sensitive
// while server lookup is not, matching the policy store contract.
//
// Returns nil when no audit policy applies.
func (e *Evaluator) Evaluate(policies map[string]Policy, serverName, resourceName, clientIP string) *Decision {
	if len(policies) == 0 {
		return nil
	}

	if serverName != "" {
		if p, ok := policies[strings.ToLower(serverName)]; ok {
			if d := e.evaluatePolicy(p, clientIP); d != nil && !d.Allowed {
				return d
			}
		}
	}

	if resourceName == "" {
		return nil
	}
	p, ok := policies[resourceName]
	if !ok {
		return nil
	}
	return e.evaluatePolicy(p, clientIP)
}

// evaluatePolicy applies a single audit policy.
func (e *Evaluator) evaluatePolicy(p Policy, clientIP string) *Decision {
	switch strings.ToLower(strings.TrimSpace(p.Remarks)) {
	case RemarksApproved:
		return &Decision{Allowed: true}

	case RemarksRejected:
		return &Decision{Allowed: false, Reason: RejectedReason}

	case RemarksConditionallyApproved:
		return e.evaluateConditions(p, clientIP)

	default:
		e.logger.Warn("unrecognized audit remarks, allowing",
			"resource", p.ResourceName,
			"remarks", p.Remarks,
		)
		return &Decision{Allowed: true}
	}
}

// evaluateConditions applies the approval conditions of a conditionally
// approved resource, in fixed order: expiry, then IP restrictions.
func (e *Evaluator) evaluateConditions(p Policy, clientIP string) *Decision {
	cond := p.ApprovalConditions
	if cond == nil {
		return &Decision{Allowed: true}
	}

	if cond.ExpiresAt > 0 && e.now().Unix() > cond.ExpiresAt {
		return &Decision{Allowed: false, Reason: ExpiredReason}
	}

	if clientIP != "" && (len(cond.AllowedIPs) > 0 || len(cond.AllowedIPRanges) > 0) {
		if !ipAllowed(clientIP, cond) {
			return &Decision{Allowed: false, Reason: IPNotAllowedReason}
		}
	}

	if len(cond.WhitelistedEndpoints) > 0 {
		e.logger.Warn("whitelistedEndpoints is recognized but not enforced",
			"resource", p.ResourceName,
		)
	}

	return &Decision{Allowed: true}
}

// ipAllowed reports whether the client IP matches an exact allowed IP
// or an allowed CIDR range.
func ipAllowed(clientIP string, cond *ApprovalConditions) bool {
	for _, ip := range cond.AllowedIPs {
		if ip == clientIP {
			return true
		}
	}
	for _, cidr := range cond.AllowedIPRanges {
		if IsIPInCIDR(clientIP, cidr) {
			return true
		}
	}
	return false
}
