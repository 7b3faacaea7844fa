package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/akto-api-security/mcp-guardrails/internal/config"
)

var printConfigCmd = &cobra.Command{
	Use:   "print-config",
	Short: "Print the effective configuration",
	Long: `Print the effective configuration after merging the config file,
environment variables and defaults. Secrets are redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		redacted := *cfg
		redacted.DatabaseAbstractor.Token = redactSecret(cfg.DatabaseAbstractor.Token)
		redacted.ThreatBackend.Token = redactSecret(cfg.ThreatBackend.Token)
		redacted.RateLimit.Redis.Password = redactSecret(cfg.RateLimit.Redis.Password)

		out, err := yaml.Marshal(&redacted)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}

		if configFile := config.ConfigFileUsed(); configFile != "" {
			fmt.Printf("# config file: %s\n", configFile)
		}
		fmt.Print(string(out))
		return nil
	},
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func init() {
	rootCmd.AddCommand(printConfigCmd)
}
