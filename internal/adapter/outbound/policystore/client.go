// Package policystore implements the outbound client for the remote
// policy backend (guardrail policies and audit policies).
package policystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/audit"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/policy"
	"github.com/akto-api-security/mcp-guardrails/internal/port/outbound"
)

// API paths on the policy backend.
const (
	guardrailPoliciesPath = "/api/fetchGuardrailPolicies"
	auditInfoPath         = "/api/fetchMcpAuditInfo"
)

// defaultTimeout bounds a single policy store call.
const defaultTimeout = 10 * time.Second

// Client fetches policies over HTTP. The Authorization header carries
// the raw token, no scheme prefix.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a policy store client for the given base URL and
// token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// guardrailEnvelope is the response shape of fetchGuardrailPolicies.
// Older store versions return a bare array; both are accepted.
type guardrailEnvelope struct {
	GuardrailPolicies []policy.GuardrailPolicy `json:"guardrailPolicies"`
}

// FetchGuardrailPolicies retrieves and normalizes guardrail policies.
// Failures are surfaced: without policies the engine cannot decide.
func (c *Client) FetchGuardrailPolicies(ctx context.Context) ([]policy.Policy, error) {
	body, err := c.post(ctx, guardrailPoliciesPath, []byte(`{}`))
	if err != nil {
		return nil, fmt.Errorf("fetch guardrail policies: %w", err)
	}

	var env guardrailEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.GuardrailPolicies == nil {
		var bare []policy.GuardrailPolicy
		if err := json.Unmarshal(body, &bare); err != nil {
			return nil, fmt.Errorf("fetch guardrail policies: decode response: %w", err)
		}
		env.GuardrailPolicies = bare
	}

	policies := make([]policy.Policy, 0, len(env.GuardrailPolicies))
	for _, gp := range env.GuardrailPolicies {
		policies = append(policies, policy.Translate(gp))
	}

	c.logger.Debug("guardrail policies fetched",
		"count", len(policies),
		"fingerprint", fmt.Sprintf("%016x", fingerprint(body)),
	)
	return policies, nil
}

// auditEnvelope is the response shape of fetchMcpAuditInfo.
type auditEnvelope struct {
	AuditInfo []audit.Policy `json:"auditInfo"`
}

// auditRemarksFilter is the fixed request body: only conditionally
// approved and rejected resources matter to enforcement.
var auditRemarksFilter = []byte(`{"remarksList":["Conditionally Approved","Rejected"]}`)

// FetchAuditPolicies retrieves audit policies keyed by lowercased
// resource name. Failures degrade to an empty map; audit enforcement
// is best-effort by contract.
func (c *Client) FetchAuditPolicies(ctx context.Context) (map[string]audit.Policy, error) {
	body, err := c.post(ctx, auditInfoPath, auditRemarksFilter)
	if err != nil {
		c.logger.Warn("audit policy fetch failed, continuing without audit rules", "error", err)
		return map[string]audit.Policy{}, nil
	}

	var env auditEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.AuditInfo == nil {
		var bare []audit.Policy
		if err := json.Unmarshal(body, &bare); err != nil {
			c.logger.Warn("audit policy response undecodable, continuing without audit rules", "error", err)
			return map[string]audit.Policy{}, nil
		}
		env.AuditInfo = bare
	}

	policies := make(map[string]audit.Policy, len(env.AuditInfo))
	for _, p := range env.AuditInfo {
		if p.ResourceName == "" {
			continue
		}
		policies[strings.ToLower(p.ResourceName)] = p
	}
	return policies, nil
}

// post issues one POST with the raw-token Authorization header and
// returns the response body for 2xx statuses.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("policy store returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// fingerprint hashes a policy payload so operators can spot policy set
// changes across fetches in the logs.
func fingerprint(body []byte) uint64 {
	h := xxhash.New()
	_, _ = h.Write(body)
	return h.Sum64()
}

// Compile-time check that Client implements the PolicyStore port.
var _ outbound.PolicyStore = (*Client)(nil)
