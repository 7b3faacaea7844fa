package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Client is the MCP Guardrails SDK client. It submits MCP payloads to
// the guardrails server for validation before they are forwarded.
type Client struct {
	serverAddr string
	failMode   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new guardrails SDK client.
// It reads configuration from MCP_GUARDRAILS_* environment variables by
// default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("MCP_GUARDRAILS_SERVER_ADDR"),
		failMode:   envOrDefault("MCP_GUARDRAILS_FAIL_MODE", "open"),
		timeout:    parseDurationEnv("MCP_GUARDRAILS_TIMEOUT", 5*time.Second),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// ValidateRequest submits an MCP request payload for validation.
//
// A blocked payload returns a *RequestBlockedError; callers should check
// errors.As / errors.Is(err, ErrRequestBlocked). An allowed-but-modified
// result carries the redacted payload to forward instead. When the
// server is unreachable, fail-open mode returns an allow result and
// fail-closed mode returns ErrServerUnreachable.
func (c *Client) ValidateRequest(ctx context.Context, payload string) (*Result, error) {
	return c.validate(ctx, "/api/validate/request", payload)
}

// ValidateResponse submits an MCP response payload for validation. The
// semantics match ValidateRequest.
func (c *Client) ValidateResponse(ctx context.Context, payload string) (*Result, error) {
	return c.validate(ctx, "/api/validate/response", payload)
}

func (c *Client) validate(ctx context.Context, path, payload string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"payload": payload})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	raw, err := c.post(ctx, path, body)
	if err != nil {
		return c.handleTransportFailure(err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if !res.Allowed {
		return &res, &RequestBlockedError{
			Reason:   res.Reason,
			Metadata: res.Metadata,
		}
	}
	return &res, nil
}

// IngestBatch submits a batch of mirrored exchanges for validation and
// returns the per-record results in input order. Unlike the validate
// calls, batch results never surface RequestBlockedError; callers read
// the per-half outcome from each BatchItemResult.
func (c *Client) IngestBatch(ctx context.Context, records []IngestRecord) ([]BatchItemResult, error) {
	body, err := json.Marshal(map[string]any{"batchData": records})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	raw, err := c.post(ctx, "/api/ingestData", body)
	if err != nil {
		return nil, err
	}

	var res struct {
		Success bool              `json:"success"`
		Results []BatchItemResult `json:"results"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	return res.Results, nil
}

// Health reports whether the guardrails server is reachable and healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return &ServerError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var envelope struct {
			Errors []string `json:"errors"`
		}
		_ = json.Unmarshal(raw, &envelope)
		msg := ""
		if len(envelope.Errors) > 0 {
			msg = envelope.Errors[0]
		}
		return nil, &ServerError{StatusCode: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

// handleTransportFailure applies the configured fail mode to an
// unreachable-server error. Server-side errors (non-2xx) always
// propagate regardless of fail mode.
func (c *Client) handleTransportFailure(err error) (*Result, error) {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return nil, err
	}
	if c.failMode == "closed" {
		return nil, err
	}
	c.logger.Warn("guardrails server unreachable, allowing payload (fail-open)", "error", err)
	return &Result{Allowed: true}, nil
}

func (c *Client) baseURL() string {
	addr := c.serverAddr
	if addr == "" {
		addr = "http://127.0.0.1:9090"
	}
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/")
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
