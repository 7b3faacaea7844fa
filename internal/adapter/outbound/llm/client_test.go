package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComplete(t *testing.T) {
	var gotAuth string
	var gotReq map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/getLLMResponseV2" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"isMalicious\":true}"}}]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "raw-token", slog.Default())
	content, err := c.Complete(context.Background(), "analyze this tool")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	// Raw token, no Bearer prefix.
	if gotAuth != "raw-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if content != `{"isMalicious":true}` {
		t.Errorf("content = %q", content)
	}

	payload, _ := gotReq["llmPayload"].(map[string]interface{})
	if payload == nil {
		t.Fatal("missing llmPayload")
	}
	if payload["temperature"] != 0.1 || payload["top_p"] != 0.9 {
		t.Errorf("sampling params: %v", payload)
	}
	if payload["max_tokens"] != float64(10000) || payload["presence_penalty"] != 0.6 {
		t.Errorf("sampling params: %v", payload)
	}
	messages, _ := payload["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("messages: %v", messages)
	}
	msg := messages[0].(map[string]interface{})
	if msg["role"] != "system" || msg["content"] != "analyze this tool" {
		t.Errorf("message: %v", msg)
	}
}

func TestComplete_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "tok", slog.Default())
	if _, err := c.Complete(context.Background(), "p"); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestComplete_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := NewClient(server.URL, "tok", slog.Default())
	if _, err := c.Complete(context.Background(), "p"); err == nil {
		t.Error("expected error for 429 response")
	}
}
