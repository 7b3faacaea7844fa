// Package scanner implements the outbound client for the remote
// content scanner service.
package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akto-api-security/mcp-guardrails/internal/port/outbound"
)

// DefaultURL is the scanner endpoint used when none is configured.
const DefaultURL = "https://model-executor/scan"

// scanDeadline is the shared deadline for the whole fan-out. On expiry
// in-flight calls are aborted and counted as failures, not blocks.
const scanDeadline = 5 * time.Second

// maxTextSize is the largest payload the scanner accepts (1 MiB).
const maxTextSize = 1 << 20

// ErrTextTooLarge is returned when the input exceeds maxTextSize.
var ErrTextTooLarge = errors.New("scan text exceeds 1 MiB")

// scanType is the only scan type the remote scanner supports today.
const scanType = "prompt"

// Client fans out scan requests to the remote scanner service, one
// call per scanner name, under a single deadline.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient creates a scanner client. An empty url selects DefaultURL.
func NewClient(url string, logger *slog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{},
		logger:     logger,
		tracer:     otel.Tracer("mcp-guardrails/scanner"),
	}
}

// scanRequest is the per-scanner request body.
type scanRequest struct {
	Text        string                 `json:"text"`
	ScannerType string                 `json:"scanner_type"`
	ScannerName string                 `json:"scanner_name"`
	Config      map[string]interface{} `json:"config"`
}

// Scan runs text through the named scanners concurrently. Successes
// land in Results; failures (HTTP errors, timeouts, bad JSON) are
// counted and logged, never surfaced.
func (c *Client) Scan(ctx context.Context, text string, scanners []string) (outbound.ScanResponse, error) {
	if len(text) > maxTextSize {
		return outbound.ScanResponse{}, ErrTextTooLarge
	}
	if len(scanners) == 0 {
		return outbound.ScanResponse{}, nil
	}

	ctx, span := c.tracer.Start(ctx, "scanner.fanout",
		trace.WithAttributes(attribute.Int("scanner.count", len(scanners))))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, scanDeadline)
	defer cancel()

	type outcome struct {
		result outbound.ScanResult
		err    error
	}
	outcomes := make(chan outcome, len(scanners))

	var wg sync.WaitGroup
	for _, name := range scanners {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			result, err := c.scanOne(ctx, text, name)
			outcomes <- outcome{result: result, err: err}
		}(name)
	}
	wg.Wait()
	close(outcomes)

	var resp outbound.ScanResponse
	for o := range outcomes {
		if o.err != nil {
			resp.FailureCount++
			c.logger.Warn("scanner call failed", "error", o.err)
			continue
		}
		resp.Results = append(resp.Results, o.result)
	}
	span.SetAttributes(attribute.Int("scanner.failures", resp.FailureCount))
	return resp, nil
}

// scanOne issues a single scanner POST.
func (c *Client) scanOne(ctx context.Context, text, scannerName string) (outbound.ScanResult, error) {
	body, err := json.Marshal(scanRequest{
		Text:        text,
		ScannerType: scanType,
		ScannerName: scannerName,
		Config:      map[string]interface{}{},
	})
	if err != nil {
		return outbound.ScanResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return outbound.ScanResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return outbound.ScanResult{}, fmt.Errorf("scanner %s: %w", scannerName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return outbound.ScanResult{}, fmt.Errorf("scanner %s: status %d", scannerName, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return outbound.ScanResult{}, fmt.Errorf("scanner %s: %w", scannerName, err)
	}
	var result outbound.ScanResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return outbound.ScanResult{}, fmt.Errorf("scanner %s: decode: %w", scannerName, err)
	}
	if result.ScannerName == "" {
		result.ScannerName = scannerName
	}
	return result, nil
}

// Compile-time check that Client implements the Scanner port.
var _ outbound.Scanner = (*Client)(nil)
