// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"

	gocel "github.com/google/cel-go/cel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	celeval "github.com/akto-api-security/mcp-guardrails/internal/adapter/outbound/cel"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/audit"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/policy"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/ratelimit"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/threat"
	"github.com/akto-api-security/mcp-guardrails/internal/domain/validation"
	"github.com/akto-api-security/mcp-guardrails/internal/port/inbound"
	"github.com/akto-api-security/mcp-guardrails/internal/port/outbound"
	"github.com/akto-api-security/mcp-guardrails/pkg/mcp"
)

// RateLimitPolicyID tags rate-limit blocks in result metadata and threat
// reports.
const RateLimitPolicyID = "RateLimitPolicy"

// CustomRulePolicyID tags blocks from locally configured expression rules.
const CustomRulePolicyID = "CustomRulePolicy"

// CustomRule is a locally configured expression rule. Matching rules
// always block.
type CustomRule struct {
	Name      string
	Condition string
}

// compiledRule pairs a rule name with its compiled program.
type compiledRule struct {
	name string
	prg  gocel.Program
}

// GuardrailConfig carries the static configuration of the validation
// pipeline.
type GuardrailConfig struct {
	// Enabled is the master switch. When false every payload is allowed
	// without inspection and no policies are fetched.
	Enabled bool

	// ServerName optionally names the MCP server this gateway fronts,
	// enabling server-level audit policies.
	ServerName string

	// RateLimit configures the tool-call limiter.
	RateLimit ratelimit.Config

	// CustomRules are local expression rules evaluated before remote
	// policies.
	CustomRules []CustomRule
}

// GuardrailService is the validation orchestrator. It composes the
// rate limiter, audit evaluator, local matchers and the remote scanner
// into a single ternary decision per payload, and emits threat reports
// for blocks and redactions on a detached task.
type GuardrailService struct {
	cfg GuardrailConfig

	store    outbound.PolicyStore
	scanner  outbound.Scanner
	reporter outbound.ThreatReporter
	tasks    outbound.TaskRunner

	limiter      *ratelimit.Limiter
	auditEval    *audit.Evaluator
	piiValidator *validation.PIIValidator
	rxValidator  *validation.RegexValidator
	exprRules    []compiledRule
	exprEval     *celeval.Evaluator
	metaAuditor  *MetadataAuditor

	logger *slog.Logger
	tracer trace.Tracer
}

// NewGuardrailService wires the validation pipeline. metaAuditor may be
// nil to disable tool metadata auditing. Invalid custom rules fail
// construction.
func NewGuardrailService(
	cfg GuardrailConfig,
	store outbound.PolicyStore,
	scanner outbound.Scanner,
	reporter outbound.ThreatReporter,
	tasks outbound.TaskRunner,
	kv ratelimit.Store,
	metaAuditor *MetadataAuditor,
	logger *slog.Logger,
) (*GuardrailService, error) {
	s := &GuardrailService{
		cfg:          cfg,
		store:        store,
		scanner:      scanner,
		reporter:     reporter,
		tasks:        tasks,
		limiter:      ratelimit.NewLimiter(kv, logger),
		auditEval:    audit.NewEvaluator(logger),
		piiValidator: validation.NewPIIValidator(logger),
		rxValidator:  validation.NewRegexValidator(logger),
		metaAuditor:  metaAuditor,
		logger:       logger,
		tracer:       otel.Tracer("mcp-guardrails/service"),
	}

	if len(cfg.CustomRules) > 0 {
		eval, err := celeval.NewEvaluator()
		if err != nil {
			return nil, fmt.Errorf("expression environment: %w", err)
		}
		s.exprEval = eval
		for _, rule := range cfg.CustomRules {
			prg, err := eval.Compile(rule.Condition)
			if err != nil {
				return nil, fmt.Errorf("custom rule %q: %w", rule.Name, err)
			}
			s.exprRules = append(s.exprRules, compiledRule{name: rule.Name, prg: prg})
		}
	}

	return s, nil
}

// NewContext fetches the active policies and builds a validation context
// for one call. Guardrail policy fetch failure is surfaced; audit fetch
// failure degrades to no audit rules.
func (s *GuardrailService) NewContext(ctx context.Context) (*validation.Context, error) {
	vctx := &validation.Context{
		MCPServerName: s.cfg.ServerName,
		RateLimit:     s.cfg.RateLimit,
	}
	if !s.cfg.Enabled {
		return vctx, nil
	}

	policies, err := s.store.FetchGuardrailPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch guardrail policies: %w", err)
	}
	vctx.Policies = policies

	auditPolicies, err := s.store.FetchAuditPolicies(ctx)
	if err != nil {
		s.logger.Warn("audit policy fetch failed, continuing without audit rules", "error", err)
		auditPolicies = map[string]audit.Policy{}
	}
	vctx.AuditPolicies = auditPolicies
	vctx.HasAuditRules = len(auditPolicies) > 0

	return vctx, nil
}

// ValidateRequest validates the request half of an MCP exchange.
//
// Pipeline order: rate limit (tools/call only), audit, safe-method
// short-circuit, local expression/PII/regex matchers, remote scanner
// fan-out. A block or redaction emits one detached threat report.
func (s *GuardrailService) ValidateRequest(ctx context.Context, vctx *validation.Context) validation.Result {
	if !s.cfg.Enabled {
		return validation.Allow()
	}
	payload := vctx.RequestPayload
	if payload == "" {
		return validation.Allow()
	}

	ctx, span := s.tracer.Start(ctx, "guardrails.validate_request")
	defer span.End()

	req, parsed := mcp.ParseRequest(payload)

	if parsed && req.IsToolCall() && vctx.RateLimit.Enabled {
		if res := s.checkRateLimit(ctx, vctx, req); res != nil {
			return s.finish(span, vctx, *res, payload)
		}
	}

	if vctx.HasAuditRules {
		resource := ""
		if parsed {
			resource = audit.ResourceName(req)
		}
		if d := s.auditEval.Evaluate(vctx.AuditPolicies, vctx.MCPServerName, resource, vctx.IP); d != nil && !d.Allowed {
			res := validation.Block(d.Reason, map[string]interface{}{
				validation.MetaPolicyID: audit.PolicyID,
			})
			return s.finish(span, vctx, res, payload)
		}
	}

	scannable := mcp.ExtractScannable(payload)
	if scannable == "" {
		// Safe protocol method: allowed, never scanned.
		span.SetAttributes(attribute.Bool("guardrails.safe_method", true))
		return validation.Allow()
	}

	if res := s.checkExpressionRules(req, vctx.IP, scannable); res != nil {
		return s.finish(span, vctx, *res, payload)
	}

	res := s.applyPolicies(ctx, vctx.Policies, payload, scannable, requestRules)
	return s.finish(span, vctx, res, payload)
}

// ValidateResponse validates the response half of an MCP exchange.
// Responses skip rate limiting and audit; they run the response-side
// rules only. A tools/list response additionally triggers the detached
// metadata auditor.
func (s *GuardrailService) ValidateResponse(ctx context.Context, vctx *validation.Context) validation.Result {
	if !s.cfg.Enabled {
		return validation.Allow()
	}
	payload := vctx.ResponsePayload
	if payload == "" {
		return validation.Allow()
	}

	ctx, span := s.tracer.Start(ctx, "guardrails.validate_response")
	defer span.End()

	s.maybeAuditToolsList(vctx)

	// Responses carry no method, so extraction falls through to opaque
	// text. A response that happens to embed a safe-method request is
	// still skipped.
	scannable := mcp.ExtractScannable(payload)
	if scannable == "" {
		span.SetAttributes(attribute.Bool("guardrails.safe_method", true))
		return validation.Allow()
	}

	res := s.applyPolicies(ctx, vctx.Policies, payload, scannable, responseRules)
	return s.finish(span, vctx, res, payload)
}

// ruleSide selects one direction's rules from a rule set.
type ruleSide func(policy.RuleSet) []policy.FilterRule

func requestRules(rs policy.RuleSet) []policy.FilterRule  { return rs.Request }
func responseRules(rs policy.RuleSet) []policy.FilterRule { return rs.Response }

// checkRateLimit applies the tool-call limiter. Returns nil when the
// call is within limits (or the store failed and we fail open).
func (s *GuardrailService) checkRateLimit(ctx context.Context, vctx *validation.Context, req *mcp.Request) *validation.Result {
	tool := req.ToolName()
	key := ratelimit.Identifier(vctx.RateLimit, vctx.IP, vctx.RequestHeaders, tool)
	r := s.limiter.Check(ctx, vctx.RateLimit, key, tool)
	if r.Allowed {
		return nil
	}
	res := validation.Block(ratelimit.BlockReason(r), map[string]interface{}{
		validation.MetaPolicyID: RateLimitPolicyID,
		"tool":                  r.Tool,
		"current_count":         r.Count,
		"limit":                 r.Limit,
		"reset_at":              r.ResetAt,
		"reset_in_seconds":      r.ResetInSeconds,
	})
	return &res
}

// checkExpressionRules evaluates the locally configured CEL rules.
// Returns a block result for the first matching rule, nil otherwise.
// Evaluation errors fail open per rule.
func (s *GuardrailService) checkExpressionRules(req *mcp.Request, ip, text string) *validation.Result {
	if len(s.exprRules) == 0 {
		return nil
	}

	in := celeval.Request{IP: ip, Text: text}
	if req != nil {
		in.Method = req.Method
		in.Tool = req.ToolName()
	}

	for _, rule := range s.exprRules {
		matched, err := s.exprEval.Evaluate(rule.prg, in)
		if err != nil {
			s.logger.Warn("expression rule evaluation failed, skipping", "rule", rule.name, "error", err)
			continue
		}
		if matched {
			res := validation.Block(fmt.Sprintf("Request blocked by rule %q", rule.name), map[string]interface{}{
				validation.MetaPolicyID: CustomRulePolicyID,
				"rule":                  rule.name,
			})
			return &res
		}
	}
	return nil
}

// scanTask tags a pending scanner call with its originating policy.
type scanTask struct {
	policyID   string
	policyName string
}

// applyPolicies runs the local matchers of every active policy and then
// the remote scanner fan-out. Local blocks win immediately; redactions
// accumulate onto the payload in rule order.
func (s *GuardrailService) applyPolicies(ctx context.Context, policies []policy.Policy, payload, scannable string, side ruleSide) validation.Result {
	current := payload
	modified := false
	var redactMeta map[string]interface{}

	var scanners []string
	tasks := make(map[string]scanTask)

	for _, p := range policies {
		if !p.Active {
			continue
		}
		for _, rule := range side(p.Rules) {
			if policy.IsScannerFilterType(rule.Type) {
				for _, name := range policy.ScannerNames(rule.Type) {
					if _, dup := tasks[name]; dup {
						continue
					}
					tasks[name] = scanTask{policyID: p.ID, policyName: p.Name}
					scanners = append(scanners, name)
				}
				continue
			}

			var res *validation.Result
			switch rule.Type {
			case policy.FilterPII:
				res = s.piiValidator.Validate(current, rule, p.ID)
			case policy.FilterRegex:
				res = s.rxValidator.Validate(current, rule, p.ID)
			default:
				// banTopics/banSubstrings and unknown types have no
				// local handler.
				continue
			}
			if res == nil {
				continue
			}
			if !res.Allowed {
				return *res
			}
			if res.Modified {
				current = res.ModifiedPayload
				modified = true
				redactMeta = res.Metadata
			}
		}
	}

	if len(scanners) > 0 {
		if res := s.runScanners(ctx, scannable, scanners, tasks); res != nil {
			return *res
		}
	}

	if modified {
		return validation.Result{
			Allowed:         true,
			Modified:        true,
			ModifiedPayload: current,
			Metadata:        redactMeta,
		}
	}
	return validation.Allow()
}

// runScanners fans out to the remote scanners and blocks on the first
// rejecting verdict. Scanner infrastructure failures fail open.
func (s *GuardrailService) runScanners(ctx context.Context, text string, scanners []string, tasks map[string]scanTask) *validation.Result {
	resp, err := s.scanner.Scan(ctx, text, scanners)
	if err != nil {
		s.logger.Warn("scanner fan-out rejected input, allowing", "error", err)
		return nil
	}
	if resp.FailureCount > 0 {
		s.logger.Warn("scanner calls failed", "failures", resp.FailureCount, "total", len(scanners))
	}

	for _, r := range resp.Results {
		if r.IsValid {
			continue
		}
		task := tasks[r.ScannerName]
		res := validation.Block(fmt.Sprintf("Content rejected by %s scanner (risk score %.2f)", r.ScannerName, r.RiskScore), map[string]interface{}{
			validation.MetaPolicyID: task.policyID,
			"scanner":               r.ScannerName,
			"risk_score":            r.RiskScore,
			"details":               r.Details,
		})
		return &res
	}
	return nil
}

// maybeAuditToolsList schedules the metadata auditor when the exchange
// is a tools/list call.
func (s *GuardrailService) maybeAuditToolsList(vctx *validation.Context) {
	if s.metaAuditor == nil {
		return
	}
	req, ok := mcp.ParseRequest(vctx.RequestPayload)
	if !ok || req.Method != "tools/list" {
		return
	}

	// Snapshot: the auditor outlives the request, vctx does not.
	in := MetadataAuditInput{
		Endpoint:        vctx.Endpoint,
		IP:              vctx.IP,
		Method:          vctx.Method,
		RequestHeaders:  cloneHeaders(vctx.RequestHeaders),
		ResponseHeaders: cloneHeaders(vctx.ResponseHeaders),
		StatusCode:      vctx.StatusCode,
		RequestPayload:  vctx.RequestPayload,
		ResponsePayload: vctx.ResponsePayload,
	}
	s.tasks.Go("metadata-audit", func(ctx context.Context) {
		s.metaAuditor.AuditToolsList(ctx, in)
	})
}

// finish records the outcome on the span and, for blocks and
// redactions, schedules exactly one detached threat report.
func (s *GuardrailService) finish(span trace.Span, vctx *validation.Context, res validation.Result, originalPayload string) validation.Result {
	span.SetAttributes(
		attribute.Bool("guardrails.allowed", res.Allowed),
		attribute.Bool("guardrails.modified", res.Modified),
	)
	if res.Allowed && !res.Modified {
		return res
	}

	in := threat.Input{
		PolicyID:        metadataPolicyID(res.Metadata),
		IP:              vctx.IP,
		Endpoint:        vctx.Endpoint,
		Method:          vctx.Method,
		RequestPayload:  vctx.RequestPayload,
		ResponsePayload: vctx.ResponsePayload,
		RequestHeaders:  cloneHeaders(vctx.RequestHeaders),
		ResponseHeaders: cloneHeaders(vctx.ResponseHeaders),
		StatusCode:      vctx.StatusCode,
	}
	if !res.Allowed {
		in.ResponsePayload = validation.NewBlockedResponse(res.Reason, originalPayload).JSON()
	}

	s.tasks.Go("threat-report", func(ctx context.Context) {
		if err := s.reporter.Report(ctx, threat.BuildEvent(in)); err != nil {
			s.logger.Warn("threat report failed", "error", err)
		}
	})
	return res
}

// metadataPolicyID pulls the policy id out of result metadata, with the
// guardrail id as fallback.
func metadataPolicyID(meta map[string]interface{}) string {
	if id, ok := meta[validation.MetaPolicyID].(string); ok && id != "" {
		return id
	}
	return policy.GuardrailPolicyID
}

// cloneHeaders copies a header map for use past the request lifecycle.
func cloneHeaders(h map[string]string) map[string]string {
	if h == nil {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Compile-time check that GuardrailService implements the inbound port.
var _ inbound.Validator = (*GuardrailService)(nil)
