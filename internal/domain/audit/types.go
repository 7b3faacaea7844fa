// Package audit contains audit policy types and the audit validator,
// which enforces explicit per-resource approval decisions.
package audit

// Remarks values recognized by the evaluator. Matching is done on the
// trimmed, lowercased form.
const (
	RemarksApproved              = "approved"
	RemarksRejected              = "rejected"
	RemarksConditionallyApproved = "conditionally approved"
)

// ApprovalConditions constrain a conditionally approved resource.
type ApprovalConditions struct {
	// ExpiresAt is the approval expiry as unix seconds. Zero means no
	// expiry.
	ExpiresAt int64 `json:"expiresAt"`

	// AllowedIPs are exact client IPs permitted to use the resource.
	AllowedIPs []string `json:"allowedIps"`

	// AllowedIPRanges are IPv4 CIDR ranges permitted to use the
	// resource.
	AllowedIPRanges []string `json:"allowedIpRanges"`

	// WhitelistedEndpoints is recognized but not enforced.
	WhitelistedEndpoints []string `json:"whitelistedEndpoints"`
}

// Policy is an audit decision for a single resource (tool name, prompt
// name or resource URI).
type Policy struct {
	ResourceName       string              `json:"resourceName"`
	Remarks            string              `json:"remarks"`
	MarkedBy           string              `json:"markedBy"`
	ApprovalConditions *ApprovalConditions `json:"approvalConditions,omitempty"`
}

// PolicyID identifies audit-driven blocks in validation metadata and
// threat reports.
const PolicyID = "AuditPolicy"

// Decision is the outcome of evaluating audit policies for a resource.
// A nil *Decision from the evaluator means audit did not apply.
type Decision struct {
	// Allowed is false when the resource access is rejected.
	Allowed bool

	// Reason explains a rejection. Empty when allowed.
	Reason string
}
