// Package guardrails provides a Go SDK for the MCP Guardrails validation API.
//
// MCP Guardrails is an in-line security gateway for Model Context Protocol
// (MCP) traffic. This SDK lets Go applications submit MCP payloads for
// validation before forwarding them, and handle block / redact decisions.
// It uses only the Go standard library (net/http) with zero external
// dependencies.
//
// Quick start:
//
//	// Set MCP_GUARDRAILS_SERVER_ADDR, then:
//	client := guardrails.NewClient()
//
//	res, err := client.ValidateRequest(ctx, payload)
//	if err != nil {
//	    var blocked *guardrails.RequestBlockedError
//	    if errors.As(err, &blocked) {
//	        fmt.Printf("Blocked: %s\n", blocked.Reason)
//	    }
//	}
//	if res.Modified {
//	    payload = res.ModifiedPayload // PII was redacted
//	}
package guardrails

// Result is the validation outcome returned by the server.
type Result struct {
	// Allowed reports whether the payload may be forwarded.
	Allowed bool `json:"allowed"`

	// Modified reports whether the payload was altered (e.g. PII
	// redaction). A modified result is always allowed.
	Modified bool `json:"modified"`

	// ModifiedPayload is the redacted payload to forward instead of the
	// original. Set only when Modified is true.
	ModifiedPayload string `json:"modifiedPayload,omitempty"`

	// Reason explains a block. Empty for allowed results.
	Reason string `json:"reason,omitempty"`

	// Metadata carries validator-specific details, such as the policy ID
	// or the matched PII type.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IngestRecord is one mirrored HTTP exchange submitted for batch
// validation.
type IngestRecord struct {
	// Method is the HTTP method of the mirrored exchange.
	Method string `json:"method,omitempty"`

	// Path is the ingress path of the mirrored exchange.
	Path string `json:"path,omitempty"`

	// IP is the client IP as seen by the mirror.
	IP string `json:"ip,omitempty"`

	// RequestHeaders and ResponseHeaders are JSON-encoded header maps.
	RequestHeaders  string `json:"requestHeaders,omitempty"`
	ResponseHeaders string `json:"responseHeaders,omitempty"`

	// StatusCode is the mirrored response status, as a string.
	StatusCode string `json:"statusCode,omitempty"`

	// RequestPayload and ResponsePayload are the raw MCP payloads.
	RequestPayload  string `json:"requestPayload,omitempty"`
	ResponsePayload string `json:"responsePayload,omitempty"`
}

// BatchItemResult is the validation outcome for one ingested record.
type BatchItemResult struct {
	Index  int    `json:"index"`
	Method string `json:"method"`
	Path   string `json:"path"`

	RequestAllowed         bool   `json:"requestAllowed"`
	RequestModified        bool   `json:"requestModified"`
	RequestModifiedPayload string `json:"requestModifiedPayload,omitempty"`
	RequestError           string `json:"requestError,omitempty"`

	ResponseAllowed         bool   `json:"responseAllowed"`
	ResponseModified        bool   `json:"responseModified"`
	ResponseModifiedPayload string `json:"responseModifiedPayload,omitempty"`
	ResponseError           string `json:"responseError,omitempty"`
}
