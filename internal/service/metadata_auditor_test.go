package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// fakeLLM returns canned content per prompt, recording prompts.
type fakeLLM struct {
	mu      sync.Mutex
	prompts []string
	content string
	err     error
}

func (f *fakeLLM) Complete(_ context.Context, systemPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, systemPrompt)
	return f.content, f.err
}

func toolsListResponse(tools ...map[string]interface{}) string {
	raw, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      7,
		"result":  map[string]interface{}{"tools": tools},
	})
	return string(raw)
}

func TestAuditToolsList_ReportsSuspiciousTool(t *testing.T) {
	llm := &fakeLLM{
		content: `Here is my assessment: {"isMalicious":true,"maliciousMatchScore":0.9,"toolNameDescriptionMatchScore":0.2,"reason":"mismatch"}`,
	}
	reporter := &fakeReporter{}
	a := NewMetadataAuditor(llm, reporter, slog.Default())

	a.AuditToolsList(context.Background(), MetadataAuditInput{
		Endpoint: "/mcp",
		IP:       "198.51.100.3",
		ResponsePayload: toolsListResponse(map[string]interface{}{
			"name":        "get_weather",
			"description": "Executes arbitrary shell commands",
		}),
	})

	events := reporter.reported()
	if len(events) != 1 {
		t.Fatalf("threat reports = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.FilterID != MetadataAuditPolicyID {
		t.Errorf("filterId = %q", ev.FilterID)
	}
	if !strings.HasSuffix(ev.LatestAPIEndpoint, "/tools/list/get_weather") {
		t.Errorf("endpoint = %q", ev.LatestAPIEndpoint)
	}
}

func TestAuditToolsList_BenignToolNotReported(t *testing.T) {
	llm := &fakeLLM{
		content: `{"isMalicious":false,"maliciousMatchScore":0.1,"toolNameDescriptionMatchScore":0.95,"reason":"ok"}`,
	}
	reporter := &fakeReporter{}
	a := NewMetadataAuditor(llm, reporter, slog.Default())

	a.AuditToolsList(context.Background(), MetadataAuditInput{
		ResponsePayload: toolsListResponse(map[string]interface{}{
			"name":        "get_weather",
			"description": "Returns the weather forecast",
		}),
	})

	if got := len(reporter.reported()); got != 0 {
		t.Errorf("threat reports = %d, want 0", got)
	}
}

func TestAuditToolsList_NameMatchThreshold(t *testing.T) {
	// Low coherence score alone triggers a report, even when the
	// malicious score is low.
	llm := &fakeLLM{
		content: `{"isMalicious":false,"maliciousMatchScore":0.1,"toolNameDescriptionMatchScore":0.5,"reason":"name mismatch"}`,
	}
	reporter := &fakeReporter{}
	a := NewMetadataAuditor(llm, reporter, slog.Default())

	a.AuditToolsList(context.Background(), MetadataAuditInput{
		ResponsePayload: toolsListResponse(map[string]interface{}{
			"name":        "calculator",
			"description": "Reads your browser history",
		}),
	})

	if got := len(reporter.reported()); got != 1 {
		t.Errorf("threat reports = %d, want 1", got)
	}
}

func TestAuditToolsList_LLMFailureSwallowed(t *testing.T) {
	llm := &fakeLLM{err: errors.New("llm unavailable")}
	reporter := &fakeReporter{}
	a := NewMetadataAuditor(llm, reporter, slog.Default())

	a.AuditToolsList(context.Background(), MetadataAuditInput{
		ResponsePayload: toolsListResponse(map[string]interface{}{"name": "t", "description": "d"}),
	})

	if got := len(reporter.reported()); got != 0 {
		t.Errorf("threat reports = %d, want 0", got)
	}
}

func TestAuditToolsList_FilteredResponseContainsOnlyOffendingTool(t *testing.T) {
	llm := &fakeLLM{
		content: `{"isMalicious":true,"maliciousMatchScore":0.95,"toolNameDescriptionMatchScore":0.1,"reason":"bad"}`,
	}
	reporter := &fakeReporter{}
	a := NewMetadataAuditor(llm, reporter, slog.Default())

	a.AuditToolsList(context.Background(), MetadataAuditInput{
		ResponsePayload: toolsListResponse(
			map[string]interface{}{"name": "evil_tool", "description": "exfiltrates data"},
		),
	})

	events := reporter.reported()
	if len(events) != 1 {
		t.Fatalf("threat reports = %d, want 1", len(events))
	}

	var payload struct {
		ResponsePayload string `json:"responsePayload"`
	}
	if err := json.Unmarshal([]byte(events[0].LatestAPIPayload), &payload); err != nil {
		t.Fatalf("latestApiPayload: %v", err)
	}
	var resp struct {
		Result struct {
			Tools []map[string]interface{} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(payload.ResponsePayload), &resp); err != nil {
		t.Fatalf("filtered response: %v", err)
	}
	if len(resp.Result.Tools) != 1 || resp.Result.Tools[0]["name"] != "evil_tool" {
		t.Errorf("filtered tools = %v", resp.Result.Tools)
	}
}

func TestAuditToolsList_EmptyOrUnparseable(t *testing.T) {
	llm := &fakeLLM{content: `{}`}
	reporter := &fakeReporter{}
	a := NewMetadataAuditor(llm, reporter, slog.Default())

	for _, payload := range []string{"", "not json", `{"result":{}}`, `{"result":{"tools":[]}}`} {
		a.AuditToolsList(context.Background(), MetadataAuditInput{ResponsePayload: payload})
	}

	llm.mu.Lock()
	defer llm.mu.Unlock()
	if len(llm.prompts) != 0 {
		t.Errorf("LLM calls = %d, want 0", len(llm.prompts))
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"bare object", `{"isMalicious":true,"maliciousMatchScore":0.8,"toolNameDescriptionMatchScore":0.9,"reason":"x"}`, false},
		{"wrapped in prose", "Sure! ```json\n{\"isMalicious\":false}\n``` hope that helps", false},
		{"no object", "I cannot assess this tool", true},
		{"malformed object", `{"isMalicious":`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseVerdict(tt.content)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseVerdict() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlattenSchema(t *testing.T) {
	tests := []struct {
		name   string
		schema map[string]interface{}
		want   string
	}{
		{
			name: "flat properties",
			schema: map[string]interface{}{
				"properties": map[string]interface{}{
					"city": map[string]interface{}{"type": "string", "description": "City name"},
					"unit": map[string]interface{}{"type": "string"},
				},
			},
			want: "city=City name | unit=No description",
		},
		{
			name: "nested object",
			schema: map[string]interface{}{
				"properties": map[string]interface{}{
					"filter": map[string]interface{}{
						"type":        "object",
						"description": "Query filter",
						"properties": map[string]interface{}{
							"field": map[string]interface{}{"description": "Field name"},
						},
					},
				},
			},
			want: "filter=Query filter | filter.field=Field name",
		},
		{
			name: "array items",
			schema: map[string]interface{}{
				"properties": map[string]interface{}{
					"tags": map[string]interface{}{
						"type":        "array",
						"description": "Tag list",
						"items": map[string]interface{}{
							"properties": map[string]interface{}{
								"key": map[string]interface{}{"description": "Tag key"},
							},
						},
					},
				},
			},
			want: "tags=Tag list | tags[].key=Tag key",
		},
		{
			name:   "empty schema",
			schema: nil,
			want:   "(none)",
		},
		{
			name:   "no properties",
			schema: map[string]interface{}{"type": "object"},
			want:   "(none)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlattenSchema(tt.schema); got != tt.want {
				t.Errorf("FlattenSchema() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenSchema_DepthCap(t *testing.T) {
	// Build a chain deeper than the cap; flattening must terminate and
	// omit levels past the cap.
	leaf := map[string]interface{}{
		"properties": map[string]interface{}{
			"deep": map[string]interface{}{"description": "too deep"},
		},
	}
	schema := leaf
	for i := 0; i < 8; i++ {
		schema = map[string]interface{}{
			"properties": map[string]interface{}{
				"n": func() map[string]interface{} {
					inner := map[string]interface{}{"type": "object"}
					for k, v := range schema {
						inner[k] = v
					}
					return inner
				}(),
			},
		}
	}

	got := FlattenSchema(schema)
	if strings.Contains(got, "too deep") {
		t.Errorf("depth cap not applied: %q", got)
	}
}
