// Package inbound defines the inbound port interfaces of the
// guardrails engine. Inbound adapters (the HTTP ingress) call these
// interfaces.
package inbound

import (
	"context"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/validation"
)

// Validator is the inbound port for payload validation.
type Validator interface {
	// ValidateRequest validates the request half of an MCP exchange.
	ValidateRequest(ctx context.Context, vctx *validation.Context) validation.Result

	// ValidateResponse validates the response half of an MCP exchange.
	ValidateResponse(ctx context.Context, vctx *validation.Context) validation.Result
}
