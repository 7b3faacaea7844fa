// Package config provides configuration types for the guardrails service.
package config

// Config is the top-level configuration for the guardrails validation
// service.
type Config struct {
	// Server configures the HTTP ingress listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Guardrails controls whether guardrail validation runs at all.
	// When disabled, every payload is allowed without inspection.
	Guardrails GuardrailsConfig `yaml:"guardrails" mapstructure:"guardrails"`

	// DatabaseAbstractor configures the remote policy store.
	DatabaseAbstractor DatabaseAbstractorConfig `yaml:"database_abstractor" mapstructure:"database_abstractor"`

	// ThreatBackend configures the threat event reporting backend.
	ThreatBackend ThreatBackendConfig `yaml:"threat_backend" mapstructure:"threat_backend"`

	// Scanner configures the external content scanning service.
	Scanner ScannerConfig `yaml:"scanner" mapstructure:"scanner"`

	// RateLimit configures per-tool rate limiting.
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// Mirror configures the optional traffic mirror.
	// When a URL is set, validated payloads are teed to it asynchronously.
	Mirror MirrorConfig `yaml:"mirror" mapstructure:"mirror"`

	// MCPServerName identifies this gateway's MCP server for audit
	// policy lookups.
	MCPServerName string `yaml:"mcp_server_name" mapstructure:"mcp_server_name"`

	// CustomRules are locally defined expression rules evaluated before
	// remote policies. They block only; redaction is not supported here.
	CustomRules []CustomRuleConfig `yaml:"custom_rules" mapstructure:"custom_rules" validate:"omitempty,dive"`

	// Observability configures tracing output.
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`

	// DevMode enables development features (verbose logging, etc).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// HTTPAddr is the address to listen on (e.g., "127.0.0.1:9090").
	// Defaults to "0.0.0.0:9090" if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info" if empty. DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// ShutdownTimeout is how long to wait for in-flight requests during
	// graceful shutdown (e.g., "10s"). Defaults to "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`
}

// GuardrailsConfig is the master switch for validation.
type GuardrailsConfig struct {
	// Enabled turns guardrail validation on or off.
	// Also settable via ENABLE_MCP_GUARDRAILS=true.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// DatabaseAbstractorConfig configures the remote policy store client.
type DatabaseAbstractorConfig struct {
	// URL is the policy store base URL.
	// Defaults to "https://cyborg.akto.io".
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// Token is sent as-is in the Authorization header (no Bearer prefix).
	Token string `yaml:"token" mapstructure:"token"`
}

// ThreatBackendConfig configures threat event reporting.
type ThreatBackendConfig struct {
	// URL is the threat backend endpoint. Defaults to the hosted backend.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`

	// Token is sent as a Bearer token. When empty, reporting is skipped.
	Token string `yaml:"token" mapstructure:"token"`
}

// ScannerConfig configures the external content scanning service.
type ScannerConfig struct {
	// URL is the scanner endpoint. Defaults to the in-cluster executor.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
}

// MirrorConfig configures asynchronous traffic mirroring.
type MirrorConfig struct {
	// URL receives a copy of each validated payload. Empty disables
	// mirroring.
	URL string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
}

// RateLimitConfig configures per-tool rate limiting.
type RateLimitConfig struct {
	// Enabled turns rate limiting on or off. Rate limiting is on by
	// default; set enabled: false to opt out.
	Enabled *bool `yaml:"enabled" mapstructure:"enabled"`

	// Limit is the maximum tool calls per window per identifier.
	// Defaults to 100.
	Limit int `yaml:"limit" mapstructure:"limit" validate:"omitempty,min=1"`

	// WindowSeconds is the window size in seconds. Defaults to 300.
	WindowSeconds int `yaml:"window_seconds" mapstructure:"window_seconds" validate:"omitempty,min=1"`

	// Identifiers selects the key components: any of "ip", "user", "tool".
	// Defaults to ["ip", "tool"].
	Identifiers []string `yaml:"identifiers" mapstructure:"identifiers" validate:"omitempty,dive,oneof=ip user tool"`

	// Store selects the counter backend.
	// Valid values: "memory" (default) or "redis".
	Store string `yaml:"store" mapstructure:"store" validate:"omitempty,oneof=memory redis"`

	// Redis configures the Redis backend when Store is "redis".
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig configures the Redis connection for rate limiting.
type RedisConfig struct {
	// Addr is the Redis host:port. Defaults to "127.0.0.1:6379".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password is the Redis AUTH password (optional).
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db" mapstructure:"db" validate:"omitempty,min=0"`
}

// CustomRuleConfig defines a locally configured expression rule.
type CustomRuleConfig struct {
	// Name is a human-readable identifier for this rule.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Condition is a CEL expression over the request.
	// Available variables: method, tool, ip, text (all strings).
	Condition string `yaml:"condition" mapstructure:"condition" validate:"required"`

	// Action is what to do when the condition matches.
	// Only "block" is supported.
	Action string `yaml:"action" mapstructure:"action" validate:"required,oneof=block"`
}

// ObservabilityConfig configures tracing.
type ObservabilityConfig struct {
	// Tracing enables OpenTelemetry spans with a stdout exporter.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "0.0.0.0:9090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}

	if c.DatabaseAbstractor.URL == "" {
		c.DatabaseAbstractor.URL = "https://cyborg.akto.io"
	}
	if c.ThreatBackend.URL == "" {
		c.ThreatBackend.URL = "https://tbs.akto.io/api/threat_detection/record_malicious_event"
	}
	if c.Scanner.URL == "" {
		c.Scanner.URL = "https://model-executor/scan"
	}

	// Rate limit defaults mirror the limiter's own defaults so an empty
	// rate_limit section behaves identically to no section at all:
	// enabled, 100 requests per 300 seconds, keyed by IP and tool.
	if c.RateLimit.Enabled == nil {
		enabled := true
		c.RateLimit.Enabled = &enabled
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 100
	}
	if c.RateLimit.WindowSeconds == 0 {
		c.RateLimit.WindowSeconds = 300
	}
	if len(c.RateLimit.Identifiers) == 0 {
		c.RateLimit.Identifiers = []string{"ip", "tool"}
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = "memory"
	}
	if c.RateLimit.Redis.Addr == "" {
		c.RateLimit.Redis.Addr = "127.0.0.1:6379"
	}
}

// IsEnabled reports the effective rate-limit toggle: on unless
// explicitly disabled.
func (r RateLimitConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}
