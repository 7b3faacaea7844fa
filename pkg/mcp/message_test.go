package mcp

import "testing"

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantOK     bool
		wantMethod string
		wantTool   string
	}{
		{
			name:       "strict jsonrpc request",
			payload:    `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"read_file"}}`,
			wantOK:     true,
			wantMethod: "tools/call",
			wantTool:   "read_file",
		},
		{
			name:       "missing jsonrpc version falls back to lenient parse",
			payload:    `{"method":"tools/call","params":{"name":"write_file"}}`,
			wantOK:     true,
			wantMethod: "tools/call",
			wantTool:   "write_file",
		},
		{
			name:       "notification without id",
			payload:    `{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`,
			wantOK:     true,
			wantMethod: "notifications/progress",
		},
		{
			name:    "response is not a request",
			payload: `{"jsonrpc":"2.0","id":1,"result":{}}`,
			wantOK:  false,
		},
		{
			name:    "invalid json",
			payload: `{broken`,
			wantOK:  false,
		},
		{
			name:    "empty payload",
			payload: "",
			wantOK:  false,
		},
		{
			name:    "no method",
			payload: `{"params":{"name":"x"}}`,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ok := ParseRequest(tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("ParseRequest ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if req.Method != tt.wantMethod {
				t.Errorf("method = %q, want %q", req.Method, tt.wantMethod)
			}
			if tt.wantTool != "" && req.ToolName() != tt.wantTool {
				t.Errorf("tool name = %q, want %q", req.ToolName(), tt.wantTool)
			}
		})
	}
}

func TestRequestResourceURI(t *testing.T) {
	req, ok := ParseRequest(`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"file:///data.txt"}}`)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if req.ResourceURI() != "file:///data.txt" {
		t.Errorf("uri = %q", req.ResourceURI())
	}
}

func TestRequestNilSafety(t *testing.T) {
	var req *Request
	if req.HasParams() {
		t.Error("nil request should have no params")
	}
	if req.ToolName() != "" {
		t.Error("nil request should have empty tool name")
	}
	if req.IsToolCall() {
		t.Error("nil request is not a tool call")
	}
}
