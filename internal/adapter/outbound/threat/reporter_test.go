package threat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	domainthreat "github.com/akto-api-security/mcp-guardrails/internal/domain/threat"
)

func TestReport(t *testing.T) {
	var gotAuth string
	var gotEvent domainthreat.Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotEvent)
	}))
	defer server.Close()

	rep := NewReporter(server.URL, "secret", slog.Default())
	ev := domainthreat.BuildEvent(domainthreat.Input{PolicyID: "MCPGuardrails", IP: "1.2.3.4"})

	if err := rep.Report(context.Background(), ev); err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotEvent.FilterID != "MCPGuardrails" || gotEvent.Actor != "1.2.3.4" {
		t.Errorf("event: %+v", gotEvent)
	}
}

func TestReport_SkippedWithoutToken(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	rep := NewReporter(server.URL, "", slog.Default())
	if err := rep.Report(context.Background(), domainthreat.Event{}); err != nil {
		t.Fatalf("tokenless report should be a no-op, got %v", err)
	}
	if called {
		t.Error("backend should not be called without a token")
	}
}

func TestReport_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	rep := NewReporter(server.URL, "tok", slog.Default())
	if err := rep.Report(context.Background(), domainthreat.Event{}); err == nil {
		t.Error("expected error for 403 response")
	}
}
