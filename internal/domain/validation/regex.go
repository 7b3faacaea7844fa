package validation

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/policy"
)

// RegexValidator matches operator-supplied patterns, compiled
// case-insensitively.
type RegexValidator struct {
	logger *slog.Logger
}

// NewRegexValidator creates a regex validator.
func NewRegexValidator(logger *slog.Logger) *RegexValidator {
	return &RegexValidator{logger: logger}
}

// Validate applies one regex rule to the text. Returns nil when the
// rule does not match. Invalid patterns are logged and ignored.
func (v *RegexValidator) Validate(text string, rule policy.FilterRule, policyID string) *Result {
	pattern, err := regexp.Compile("(?i)" + rule.Pattern)
	if err != nil {
		v.logger.Warn("invalid regex rule, ignoring", "pattern", rule.Pattern, "error", err)
		return nil
	}
	if !pattern.MatchString(text) {
		return nil
	}

	metadata := map[string]interface{}{
		MetaPolicyID: policyID,
		MetaRuleType: string(policy.FilterRegex),
	}

	if rule.Action == policy.ActionRedact {
		res := Redact(pattern.ReplaceAllString(text, "[REDACTED]"), metadata)
		return &res
	}

	res := Block(fmt.Sprintf("Payload matches blocked pattern %q", rule.Pattern), metadata)
	return &res
}
