// Package threat implements the outbound reporter that delivers
// malicious events to the threat backend.
package threat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/threat"
	"github.com/akto-api-security/mcp-guardrails/internal/port/outbound"
)

// DefaultURL is the threat backend endpoint used when none is
// configured.
const DefaultURL = "https://tbs.akto.io/api/threat_detection/record_malicious_event"

// reportTimeout bounds one report POST. Reports run detached, so the
// bound protects the background task group, not the request.
const reportTimeout = 10 * time.Second

// Reporter posts malicious events with bearer authentication.
type Reporter struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewReporter creates a threat reporter. An empty url selects
// DefaultURL. An empty token disables reporting entirely.
func NewReporter(url, token string, logger *slog.Logger) *Reporter {
	if url == "" {
		url = DefaultURL
	}
	return &Reporter{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: reportTimeout},
		logger:     logger,
	}
}

// Report posts one event. Without a token the call is skipped. Non-2xx
// statuses and transport failures are logged and returned; callers run
// detached and drop the error.
func (r *Reporter) Report(ctx context.Context, ev threat.Event) error {
	if r.token == "" {
		r.logger.Debug("threat backend token unset, skipping report", "filter_id", ev.FilterID)
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal threat event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build threat report: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("threat report failed", "filter_id", ev.FilterID, "error", err)
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("threat backend returned status %d", resp.StatusCode)
		r.logger.Error("threat report rejected", "filter_id", ev.FilterID, "status", resp.StatusCode)
		return err
	}

	r.logger.Info("threat event reported", "filter_id", ev.FilterID, "actor", ev.Actor)
	return nil
}

// Compile-time check that Reporter implements the ThreatReporter port.
var _ outbound.ThreatReporter = (*Reporter)(nil)
