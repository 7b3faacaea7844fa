// Package mcp provides lenient parsing of MCP JSON-RPC payloads for
// the guardrails engine.
//
// MCP payloads arriving at the gateway are untrusted: they may be valid
// JSON-RPC 2.0, JSON without an envelope, or arbitrary text. Parsing is
// therefore two-stage: the strict MCP SDK decoder first, then a plain
// JSON fallback. Callers that need to scan unstructured traffic treat a
// parse failure as opaque text rather than an error.
package mcp

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Request is a leniently parsed MCP request.
type Request struct {
	// Method is the JSON-RPC method name (e.g., "tools/call").
	Method string

	// Params holds the decoded params object. Nil when params are
	// absent or not a JSON object.
	Params map[string]interface{}

	// RawParams preserves the params bytes for re-serialization.
	RawParams json.RawMessage
}

// envelope is the fallback shape for payloads the strict SDK decoder
// rejects (e.g., missing the "jsonrpc" version field).
type envelope struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// ParseRequest parses a raw payload into a Request.
// It first tries the MCP SDK's strict JSON-RPC decoder, then falls back
// to a plain JSON object with "method"/"params" fields.
// Returns false when the payload is not parseable or carries no method.
func ParseRequest(payload string) (*Request, bool) {
	if payload == "" {
		return nil, false
	}

	if decoded, err := jsonrpc.DecodeMessage([]byte(payload)); err == nil {
		if req, ok := decoded.(*jsonrpc.Request); ok && req.Method != "" {
			return newRequest(req.Method, req.Params), true
		}
		// Responses and other message kinds carry no method.
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, false
	}
	if env.Method == "" {
		return nil, false
	}
	return newRequest(env.Method, env.Params), true
}

// newRequest builds a Request, decoding params into a map when they
// form a JSON object.
func newRequest(method string, rawParams json.RawMessage) *Request {
	r := &Request{Method: method, RawParams: rawParams}
	if len(rawParams) > 0 {
		var params map[string]interface{}
		if err := json.Unmarshal(rawParams, &params); err == nil {
			r.Params = params
		}
	}
	return r
}

// HasParams reports whether the request carried a params object.
func (r *Request) HasParams() bool {
	return r != nil && r.Params != nil
}

// ToolName returns params.name for tools/call and prompts/get requests.
// Returns the empty string when absent.
func (r *Request) ToolName() string {
	return r.stringParam("name")
}

// ResourceURI returns params.uri for resources/read requests.
// Returns the empty string when absent.
func (r *Request) ResourceURI() string {
	return r.stringParam("uri")
}

// IsToolCall reports whether this is a tools/call request.
func (r *Request) IsToolCall() bool {
	return r != nil && r.Method == "tools/call"
}

func (r *Request) stringParam(key string) string {
	if r == nil || r.Params == nil {
		return ""
	}
	s, _ := r.Params[key].(string)
	return s
}
