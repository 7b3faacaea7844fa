package main

import "github.com/akto-api-security/mcp-guardrails/cmd/mcp-guardrails/cmd"

func main() {
	cmd.Execute()
}
