package validation

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/policy"
)

// piiPatterns maps recognized PII type names (lowercase) to their
// detection patterns. Unknown types are ignored by the validator.
var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
	"phone":       regexp.MustCompile(`(\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}`),
	"ssn":         regexp.MustCompile(`\d{3}-\d{2}-\d{4}`),
	"credit_card": regexp.MustCompile(`\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}`),
	"ip_address":  regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`),
	"password":    regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*\S+`),
	"api_key":     regexp.MustCompile(`(?i)(api[_\-]?key|apikey|access[_\-]?token)\s*[:=]\s*\S+`),
	"url":         regexp.MustCompile(`https?://\S+`),
}

// PIIValidator matches a fixed catalogue of PII patterns.
type PIIValidator struct {
	logger *slog.Logger
}

// NewPIIValidator creates a PII validator.
func NewPIIValidator(logger *slog.Logger) *PIIValidator {
	return &PIIValidator{logger: logger}
}

// Validate applies one pii rule to the text. Returns nil when the rule
// does not match (or names an unknown PII type).
func (v *PIIValidator) Validate(text string, rule policy.FilterRule, policyID string) *Result {
	piiType := strings.ToLower(rule.Pattern)
	pattern, ok := piiPatterns[piiType]
	if !ok {
		v.logger.Debug("unknown pii type, ignoring", "pii_type", rule.Pattern)
		return nil
	}
	if !pattern.MatchString(text) {
		return nil
	}

	metadata := map[string]interface{}{
		MetaPolicyID: policyID,
		MetaRuleType: string(policy.FilterPII),
		MetaPIIType:  piiType,
	}

	if rule.Action == policy.ActionRedact {
		replacement := "[" + strings.ToUpper(piiType) + "_REDACTED]"
		redacted := pattern.ReplaceAllString(text, replacement)
		res := Redact(redacted, metadata)
		return &res
	}

	res := Block(fmt.Sprintf("Payload contains %s data", piiType), metadata)
	return &res
}
