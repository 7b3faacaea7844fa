package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/validation"
)

// IngestRecord is one element of an ingestion batch: a mirrored API
// call with its headers serialized as JSON strings.
type IngestRecord struct {
	Method          string      `json:"method"`
	Path            string      `json:"path"`
	IP              string      `json:"ip"`
	DestIP          string      `json:"destIp"`
	Time            json.Number `json:"time"`
	StatusCode      string      `json:"statusCode"`
	RequestHeaders  string      `json:"requestHeaders"`
	ResponseHeaders string      `json:"responseHeaders"`
	RequestPayload  string      `json:"requestPayload"`
	ResponsePayload string      `json:"responsePayload"`
}

// BatchItemResult is the per-record outcome of batch validation.
type BatchItemResult struct {
	Index  int    `json:"index"`
	Method string `json:"method"`
	Path   string `json:"path"`

	RequestAllowed         bool   `json:"requestAllowed"`
	RequestModified        bool   `json:"requestModified"`
	RequestModifiedPayload string `json:"requestModifiedPayload,omitempty"`
	RequestError           string `json:"requestError,omitempty"`

	ResponseAllowed         bool   `json:"responseAllowed"`
	ResponseModified        bool   `json:"responseModified"`
	ResponseModifiedPayload string `json:"responseModifiedPayload,omitempty"`
	ResponseError           string `json:"responseError,omitempty"`
}

// BatchService validates ingestion batches. Policies are fetched once
// per batch; records are processed sequentially so results keep the
// input order.
type BatchService struct {
	guardrails *GuardrailService
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewBatchService creates a batch processor over the validation
// pipeline.
func NewBatchService(guardrails *GuardrailService, logger *slog.Logger) *BatchService {
	return &BatchService{
		guardrails: guardrails,
		logger:     logger,
		tracer:     otel.Tracer("mcp-guardrails/batch"),
	}
}

// Process validates every record of the batch. The error covers policy
// acquisition only; per-record validation failures land in the item
// results and never abort the batch.
func (s *BatchService) Process(ctx context.Context, records []IngestRecord) ([]BatchItemResult, error) {
	ctx, span := s.tracer.Start(ctx, "guardrails.batch",
		trace.WithAttributes(attribute.Int("batch.size", len(records))))
	defer span.End()

	shared, err := s.guardrails.NewContext(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]BatchItemResult, 0, len(records))
	for i, record := range records {
		results = append(results, s.processRecord(ctx, shared, i, record))
	}
	return results, nil
}

// processRecord validates both halves of one record.
func (s *BatchService) processRecord(ctx context.Context, shared *validation.Context, index int, record IngestRecord) BatchItemResult {
	item := BatchItemResult{
		Index:           index,
		Method:          record.Method,
		Path:            record.Path,
		RequestAllowed:  true,
		ResponseAllowed: true,
	}

	vctx := s.recordContext(shared, record)

	if record.RequestPayload != "" {
		res, err := s.runHalf(ctx, vctx, s.guardrails.ValidateRequest)
		if err != nil {
			item.RequestError = err.Error()
		} else {
			item.RequestAllowed = res.Allowed
			item.RequestModified = res.Modified
			item.RequestModifiedPayload = res.ModifiedPayload
		}
	}

	if record.ResponsePayload != "" {
		res, err := s.runHalf(ctx, vctx, s.guardrails.ValidateResponse)
		if err != nil {
			item.ResponseError = err.Error()
		} else {
			item.ResponseAllowed = res.Allowed
			item.ResponseModified = res.Modified
			item.ResponseModifiedPayload = res.ModifiedPayload
		}
	}

	return item
}

// runHalf executes one validation half, converting panics into per-half
// errors so a poisonous record cannot abort the batch.
func (s *BatchService) runHalf(ctx context.Context, vctx *validation.Context, validate func(context.Context, *validation.Context) validation.Result) (res validation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("batch validation panicked", "panic", r)
			err = fmt.Errorf("validation failed: %v", r)
		}
	}()
	return validate(ctx, vctx), nil
}

// recordContext builds the per-record validation context, sharing the
// batch-scoped policies.
func (s *BatchService) recordContext(shared *validation.Context, record IngestRecord) *validation.Context {
	statusCode := 0
	if record.StatusCode != "" {
		if code, err := strconv.Atoi(record.StatusCode); err == nil {
			statusCode = code
		}
	}

	return &validation.Context{
		IP:              record.IP,
		Endpoint:        record.Path,
		Method:          record.Method,
		RequestHeaders:  parseHeaderJSON(record.RequestHeaders),
		ResponseHeaders: parseHeaderJSON(record.ResponseHeaders),
		StatusCode:      statusCode,
		RequestPayload:  record.RequestPayload,
		ResponsePayload: record.ResponsePayload,
		MCPServerName:   shared.MCPServerName,
		Policies:        shared.Policies,
		AuditPolicies:   shared.AuditPolicies,
		HasAuditRules:   shared.HasAuditRules,
		RateLimit:       shared.RateLimit,
	}
}

// parseHeaderJSON decodes a headers-as-JSON-string field, tolerating
// non-string values by rendering them back to JSON. Keys are lowercased
// so lookups like x-user-id work however the capture spelled them.
func parseHeaderJSON(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil
	}
	headers := make(map[string]string, len(generic))
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			headers[strings.ToLower(k)] = val
		default:
			if b, err := json.Marshal(val); err == nil {
				headers[strings.ToLower(k)] = string(b)
			}
		}
	}
	return headers
}
