package mcp

import (
	"encoding/json"
	"fmt"
)

// safeMethods are protocol-layer methods exempt from content scanning.
// They carry no user-controlled content worth inspecting.
var safeMethods = map[string]struct{}{
	"initialize":                {},
	"initialized":               {},
	"ping":                      {},
	"$/cancelRequest":           {},
	"$/progress":                {},
	"notifications/initialized": {},
	"notifications/cancelled":   {},
	"notifications/progress":    {},
}

// IsSafeMethod reports whether the given MCP method is exempt from
// content scanning.
func IsSafeMethod(method string) bool {
	_, ok := safeMethods[method]
	return ok
}

// ExtractScannable projects the user-controlled fields of an MCP payload
// into a single scannable string.
//
// Behavior:
//   - Unparseable payloads (or payloads without a method or params) are
//     returned verbatim so they can still be scanned as opaque text.
//   - Safe protocol methods yield the empty string, signalling that
//     scanning should be skipped entirely.
//   - Method-specific projections apply for tools/call,
//     sampling/createMessage, prompts/get and resources/read; any other
//     method yields a JSON array wrapping the params object.
func ExtractScannable(payload string) string {
	req, ok := ParseRequest(payload)
	if !ok {
		return payload
	}
	if IsSafeMethod(req.Method) {
		return ""
	}
	if !req.HasParams() {
		return payload
	}

	switch req.Method {
	case "tools/call":
		return extractToolCall(req)
	case "sampling/createMessage", "prompts/get":
		return extractMessages(req, payload)
	case "resources/read":
		return marshalOr([]interface{}{
			map[string]interface{}{"_resource_uri": req.Params["uri"]},
		}, payload)
	default:
		return marshalOr([]interface{}{req.Params}, payload)
	}
}

// extractToolCall renders a tools/call request in the framing the
// downstream scanners expect. The exact layout is load-bearing; do not
// change it without coordinating with the scanner service.
func extractToolCall(req *Request) string {
	args := "{}"
	if raw, ok := req.Params["arguments"]; ok {
		if b, err := json.Marshal(raw); err == nil {
			args = string(b)
		}
	}
	return fmt.Sprintf("Tool: %s\nArguments:\n%s\nContext:\norigin: mcp_call", req.ToolName(), args)
}

// extractMessages collects message contents and the prompt name from
// sampling/createMessage and prompts/get requests.
func extractMessages(req *Request, payload string) string {
	var items []interface{}

	if messages, ok := req.Params["messages"].([]interface{}); ok {
		for _, m := range messages {
			msg, ok := m.(map[string]interface{})
			if !ok {
				continue
			}
			if content, ok := msg["content"]; ok {
				items = append(items, map[string]interface{}{"_message_content": content})
			}
		}
	}
	if prompt, ok := req.Params["prompt"]; ok {
		items = append(items, map[string]interface{}{"_prompt": prompt})
	}

	if len(items) == 0 {
		return payload
	}
	return marshalOr(items, payload)
}

// marshalOr marshals v to JSON, falling back to the original payload
// when marshalling fails.
func marshalOr(v interface{}, payload string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return payload
	}
	return string(b)
}
