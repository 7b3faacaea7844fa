package config

import (
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:9090")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.DatabaseAbstractor.URL != "https://cyborg.akto.io" {
		t.Errorf("DatabaseAbstractor.URL = %q", cfg.DatabaseAbstractor.URL)
	}
	if cfg.Scanner.URL != "https://model-executor/scan" {
		t.Errorf("Scanner.URL = %q", cfg.Scanner.URL)
	}
	if cfg.Guardrails.Enabled {
		t.Error("Guardrails.Enabled should default to false")
	}
}

func TestConfig_SetDefaults_RateLimit(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	// An absent rate_limit section means rate limiting is on with the
	// limiter's own defaults.
	if !cfg.RateLimit.IsEnabled() {
		t.Error("rate limiting should default to enabled")
	}
	if cfg.RateLimit.Enabled == nil || !*cfg.RateLimit.Enabled {
		t.Error("SetDefaults should pin Enabled to true when unset")
	}
	if cfg.RateLimit.Limit != 100 {
		t.Errorf("Limit = %d, want 100", cfg.RateLimit.Limit)
	}
	if cfg.RateLimit.WindowSeconds != 300 {
		t.Errorf("WindowSeconds = %d, want 300", cfg.RateLimit.WindowSeconds)
	}
	if len(cfg.RateLimit.Identifiers) != 2 || cfg.RateLimit.Identifiers[0] != "ip" || cfg.RateLimit.Identifiers[1] != "tool" {
		t.Errorf("Identifiers = %v, want [ip tool]", cfg.RateLimit.Identifiers)
	}
	if cfg.RateLimit.Store != "memory" {
		t.Errorf("Store = %q, want memory", cfg.RateLimit.Store)
	}
	if cfg.RateLimit.Redis.Addr != "127.0.0.1:6379" {
		t.Errorf("Redis.Addr = %q", cfg.RateLimit.Redis.Addr)
	}
}

func TestConfig_SetDefaults_RateLimitExplicitOptOut(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := Config{RateLimit: RateLimitConfig{Enabled: &disabled}}
	cfg.SetDefaults()

	if cfg.RateLimit.IsEnabled() {
		t.Error("explicit enabled: false must survive SetDefaults")
	}
}

func TestConfig_SetDefaults_PreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: "127.0.0.1:8081"},
		DatabaseAbstractor: DatabaseAbstractorConfig{
			URL: "http://abstractor.internal",
		},
		RateLimit: RateLimitConfig{Limit: 5, WindowSeconds: 60},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8081" {
		t.Errorf("HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.DatabaseAbstractor.URL != "http://abstractor.internal" {
		t.Errorf("DatabaseAbstractor.URL = %q", cfg.DatabaseAbstractor.URL)
	}
	if cfg.RateLimit.Limit != 5 || cfg.RateLimit.WindowSeconds != 60 {
		t.Errorf("rate limit = %d/%ds", cfg.RateLimit.Limit, cfg.RateLimit.WindowSeconds)
	}
}
