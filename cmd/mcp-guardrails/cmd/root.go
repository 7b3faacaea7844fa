// Package cmd provides the CLI commands for the MCP guardrails service.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akto-api-security/mcp-guardrails/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-guardrails",
	Short: "MCP Guardrails - in-line security validation for MCP traffic",
	Long: `MCP Guardrails validates Model Context Protocol (MCP) traffic against
centrally managed security policies: PII detection, regex rules, rate
limiting, audit deny-lists and remote content scanners.

It receives mirrored traffic batches and single payloads over HTTP,
returns allow / block / redact decisions, and reports blocked or
redacted exchanges to the threat backend.

Quick start:
  1. Set ENABLE_MCP_GUARDRAILS=true and DATABASE_ABSTRACTOR_SERVICE_TOKEN
  2. Run: mcp-guardrails start

Configuration:
  Config is loaded from mcp-guardrails.yaml in the current directory,
  $HOME/.mcp-guardrails/, or /etc/mcp-guardrails/.

  Environment variables can override config values with the MCP_GUARDRAILS_
  prefix. Example: MCP_GUARDRAILS_SERVER_HTTP_ADDR=:9090

Commands:
  start         Start the validation server
  print-config  Print the effective configuration
  version       Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-guardrails.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
