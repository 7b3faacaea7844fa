// Package config provides configuration loading for the guardrails service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for mcp-guardrails.yaml/.yml
// in standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("mcp-guardrails")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: MCP_GUARDRAILS_SERVER_HTTP_ADDR
	viper.SetEnvPrefix("MCP_GUARDRAILS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Bind nested keys for env var support
	bindNestedEnvKeys()

	// Bind the deployment environment variables the sensor is documented
	// with. These use their historical names, without the prefix.
	bindLegacyEnvKeys()
}

// findConfigFile searches standard locations for an mcp-guardrails config
// file with an explicit YAML extension (.yaml or .yml).
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".mcp-guardrails"),
		"/etc/mcp-guardrails",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "mcp-guardrails"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all config keys for environment variable support.
// Example: MCP_GUARDRAILS_SERVER_HTTP_ADDR overrides server.http_addr
func bindNestedEnvKeys() {
	// Server config
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")

	// Guardrails toggle
	_ = viper.BindEnv("guardrails.enabled")

	// Outbound services
	_ = viper.BindEnv("database_abstractor.url")
	_ = viper.BindEnv("database_abstractor.token")
	_ = viper.BindEnv("threat_backend.url")
	_ = viper.BindEnv("threat_backend.token")
	_ = viper.BindEnv("scanner.url")
	_ = viper.BindEnv("mirror.url")

	// Rate limit config
	_ = viper.BindEnv("rate_limit.enabled")
	_ = viper.BindEnv("rate_limit.limit")
	_ = viper.BindEnv("rate_limit.window_seconds")
	_ = viper.BindEnv("rate_limit.store")
	_ = viper.BindEnv("rate_limit.redis.addr")
	_ = viper.BindEnv("rate_limit.redis.password")
	_ = viper.BindEnv("rate_limit.redis.db")

	// Server identity
	_ = viper.BindEnv("mcp_server_name")

	// Observability
	_ = viper.BindEnv("observability.tracing")

	// Note: custom_rules is an array, complex to override via env.
	// Users should use the config file for expression rules.

	// Dev mode
	_ = viper.BindEnv("dev_mode")
}

// bindLegacyEnvKeys binds the unprefixed environment variable names used
// in deployment manifests. These take effect alongside the prefixed forms.
func bindLegacyEnvKeys() {
	_ = viper.BindEnv("database_abstractor.url", "DATABASE_ABSTRACTOR_SERVICE_URL")
	_ = viper.BindEnv("database_abstractor.token", "DATABASE_ABSTRACTOR_SERVICE_TOKEN")
	_ = viper.BindEnv("threat_backend.url", "THREAT_BACKEND_URL")
	_ = viper.BindEnv("threat_backend.token", "THREAT_BACKEND_TOKEN")
	_ = viper.BindEnv("guardrails.enabled", "ENABLE_MCP_GUARDRAILS")
	_ = viper.BindEnv("mcp_server_name", "MCP_SERVER_NAME")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates, and returns the Config.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
		// This is the common deployment mode (pure env configuration).
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was loaded.
// Returns an empty string if no config file was found (env vars only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
