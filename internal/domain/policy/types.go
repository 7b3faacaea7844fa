// Package policy contains domain types for guardrail policies and the
// translation from their remote authoring form.
package policy

// FilterType tags the kind of a filter rule.
type FilterType string

const (
	// FilterHarmfulCategories requests remote toxicity scanning.
	FilterHarmfulCategories FilterType = "harmfulCategories"
	// FilterPromptAttacks requests remote prompt-injection scanning.
	FilterPromptAttacks FilterType = "promptAttacks"
	// FilterBanTopics carries the denied topic strings.
	FilterBanTopics FilterType = "banTopics"
	// FilterBanSubstrings carries denied-topic sample phrases.
	FilterBanSubstrings FilterType = "banSubstrings"
	// FilterDeniedTopics is the scanner-side tag for denied topics.
	FilterDeniedTopics FilterType = "deniedTopics"
	// FilterPII matches a fixed catalogue of PII patterns locally.
	FilterPII FilterType = "pii"
	// FilterRegex matches an operator-supplied pattern locally.
	FilterRegex FilterType = "regex"
	// FilterAudit marks audit-driven resource decisions.
	FilterAudit FilterType = "audit"
	// FilterComponentMetadata marks LLM-backed tool metadata auditing.
	FilterComponentMetadata FilterType = "componentMetadata"
	// FilterExpression evaluates a CEL condition against the request.
	// Expression rules are defined locally (config), never fetched.
	FilterExpression FilterType = "expression"
)

// RuleAction is what a matching rule does to the payload.
type RuleAction string

const (
	// ActionBlock rejects the payload outright.
	ActionBlock RuleAction = "block"
	// ActionRedact replaces the matched spans and allows the payload.
	ActionRedact RuleAction = "redact"
)

// FilterRule is a single normalized guardrail rule.
type FilterRule struct {
	// Type selects the validator that handles this rule.
	Type FilterType

	// Pattern is the PII type name for pii rules or the regular
	// expression for regex rules. Unused by other types.
	Pattern string

	// Action is block or redact. Scanner-backed rules always block.
	Action RuleAction

	// Config carries type-specific settings (thresholds, topic lists,
	// CEL conditions).
	Config map[string]interface{}
}

// RuleSet holds the ordered rules for each traffic direction.
type RuleSet struct {
	Request  []FilterRule
	Response []FilterRule
}

// Policy is the internal, normalized form of a guardrail policy.
type Policy struct {
	ID     string
	Name   string
	Active bool

	// DefaultAction applies when no rule matches. Always allow today;
	// kept explicit so the orchestrator never hardcodes it.
	DefaultAction RuleAction

	Rules RuleSet
}

// GuardrailPolicyID is the fixed identifier assigned to policies
// translated from the remote guardrail store. The threat backend groups
// recurrences by this value.
const GuardrailPolicyID = "MCPGuardrails"

// scannerNames maps filter types to the remote scanner names invoked
// for them. Types absent from this map are handled locally.
var scannerNames = map[FilterType][]string{
	FilterHarmfulCategories: {"Toxicity"},
	FilterPromptAttacks:     {"PromptInjection"},
	FilterBanSubstrings:     {"BanSubstrings"},
	FilterBanTopics:         {"BanTopics"},
}

// ScannerNames returns the remote scanner names for a filter type, or
// nil when the type has no scanner mapping.
func ScannerNames(t FilterType) []string {
	return scannerNames[t]
}

// IsScannerFilterType reports whether rules of this type are dispatched
// to the remote scanner rather than evaluated locally. Note the
// asymmetry with ScannerNames: banTopics/banSubstrings have scanner
// mappings but are not scanner filter types, while deniedTopics is a
// scanner filter type with no mapping. This mirrors the upstream
// guardrail store contract.
func IsScannerFilterType(t FilterType) bool {
	switch t {
	case FilterHarmfulCategories, FilterPromptAttacks, FilterDeniedTopics:
		return true
	default:
		return false
	}
}
