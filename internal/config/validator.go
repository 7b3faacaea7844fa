package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error with actionable messages on failure.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	// Cross-field validation: a Redis-backed limiter needs an address.
	if c.RateLimit.IsEnabled() && c.RateLimit.Store == "redis" && c.RateLimit.Redis.Addr == "" {
		return errors.New("rate_limit.redis.addr is required when rate_limit.store is \"redis\"")
	}

	// Cross-field validation: guardrails need a policy store token.
	// An empty token is allowed only in dev mode (local testing against
	// a store that skips auth).
	if c.Guardrails.Enabled && c.DatabaseAbstractor.Token == "" && !c.DevMode {
		return errors.New("database_abstractor.token is required when guardrails are enabled")
	}

	// Cross-field validation: custom rule names must be unique.
	seen := make(map[string]struct{}, len(c.CustomRules))
	for i, rule := range c.CustomRules {
		if _, dup := seen[rule.Name]; dup {
			return fmt.Errorf("custom_rules[%d]: duplicate rule name: %s", i, rule.Name)
		}
		seen[rule.Name] = struct{}{}
	}

	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
