// Package http provides the HTTP ingress adapter for the guardrails
// engine.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/akto-api-security/mcp-guardrails/internal/domain/validation"
	"github.com/akto-api-security/mcp-guardrails/internal/port/outbound"
	"github.com/akto-api-security/mcp-guardrails/internal/service"
)

// maxRequestBodySize is the maximum allowed request body size (10 MB).
// Ingestion batches carry whole mirrored exchanges, so this is larger
// than a single MCP message.
const maxRequestBodySize = 10 << 20

// ValidatorService is what the handler needs from the orchestrator.
type ValidatorService interface {
	NewContext(ctx context.Context) (*validation.Context, error)
	ValidateRequest(ctx context.Context, vctx *validation.Context) validation.Result
	ValidateResponse(ctx context.Context, vctx *validation.Context) validation.Result
}

// BatchProcessor is what the handler needs from the batch service.
type BatchProcessor interface {
	Process(ctx context.Context, records []service.IngestRecord) ([]service.BatchItemResult, error)
}

// Handler serves the guardrails ingress API.
type Handler struct {
	validator ValidatorService
	batch     BatchProcessor
	tasks     outbound.TaskRunner
	metrics   *Metrics

	// mirrorURL optionally receives a copy of every ingestion batch,
	// teed on a detached task.
	mirrorURL  string
	httpClient *http.Client
}

// NewHandler creates the ingress handler. mirrorURL may be empty to
// disable mirroring.
func NewHandler(validator ValidatorService, batch BatchProcessor, tasks outbound.TaskRunner, metrics *Metrics, mirrorURL string) *Handler {
	return &Handler{
		validator:  validator,
		batch:      batch,
		tasks:      tasks,
		metrics:    metrics,
		mirrorURL:  mirrorURL,
		httpClient: &http.Client{},
	}
}

// Register mounts the API routes on a mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingestData", h.handleIngestData)
	mux.HandleFunc("POST /api/validate/request", h.validatePayload(true))
	mux.HandleFunc("POST /api/validate/response", h.validatePayload(false))
	mux.HandleFunc("GET /health", handleHealth)
}

// ingestRequest is the body of POST /api/ingestData.
type ingestRequest struct {
	BatchData []service.IngestRecord `json:"batchData"`
}

// ingestResponse is the success envelope of POST /api/ingestData.
type ingestResponse struct {
	Success bool                      `json:"success"`
	Result  string                    `json:"result"`
	Results []service.BatchItemResult `json:"results"`
}

// errorResponse is the error envelope shared by all endpoints.
type errorResponse struct {
	Success bool     `json:"success"`
	Result  string   `json:"result"`
	Errors  []string `json:"errors"`
}

func (h *Handler) handleIngestData(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	h.mirror(body)

	results, err := h.batch.Process(r.Context(), req.BatchData)
	if err != nil {
		logger.Error("batch processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.BatchRecords.Add(float64(len(req.BatchData)))
		for i, item := range results {
			// Count outcomes only for halves that carried a payload;
			// absent halves report allowed by construction.
			if i < len(req.BatchData) && req.BatchData[i].RequestPayload != "" {
				h.metrics.ValidationsTotal.WithLabelValues("request", outcomeLabel(item.RequestAllowed, item.RequestModified)).Inc()
			}
			if i < len(req.BatchData) && req.BatchData[i].ResponsePayload != "" {
				h.metrics.ValidationsTotal.WithLabelValues("response", outcomeLabel(item.ResponseAllowed, item.ResponseModified)).Inc()
			}
			// Every blocked or redacted half schedules exactly one
			// threat report.
			if !item.RequestAllowed || item.RequestModified {
				h.metrics.ThreatReports.Inc()
			}
			if !item.ResponseAllowed || item.ResponseModified {
				h.metrics.ThreatReports.Inc()
			}
		}
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Success: true,
		Result:  "SUCCESS",
		Results: results,
	})
}

// validateBody is the body of the single-payload validation endpoints.
type validateBody struct {
	Payload string `json:"payload"`
}

// validatePayload builds the handler for /api/validate/request and
// /api/validate/response.
func (h *Handler) validatePayload(isRequest bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())

		var body validateBody
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		vctx, err := h.validator.NewContext(r.Context())
		if err != nil {
			logger.Error("policy acquisition failed", "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		vctx.IP = ClientIPFromContext(r.Context())
		vctx.Endpoint = r.URL.Path
		vctx.Method = r.Method
		vctx.RequestHeaders = flattenHTTPHeaders(r.Header)

		var res validation.Result
		direction := "response"
		if isRequest {
			direction = "request"
			vctx.RequestPayload = body.Payload
			res = h.validator.ValidateRequest(r.Context(), vctx)
		} else {
			vctx.ResponsePayload = body.Payload
			res = h.validator.ValidateResponse(r.Context(), vctx)
		}

		if h.metrics != nil {
			h.metrics.ValidationsTotal.WithLabelValues(direction, outcomeLabel(res.Allowed, res.Modified)).Inc()
			if !res.Allowed || res.Modified {
				h.metrics.ThreatReports.Inc()
			}
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// healthBody is the fixed /health response.
type healthBody struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthBody{Success: true, Status: "healthy"})
}

// mirror tees a raw ingestion body to the configured mirror target on a
// detached task. Mirror failures stay on the task, never the caller.
func (h *Handler) mirror(body []byte) {
	if h.mirrorURL == "" {
		return
	}
	payload := append([]byte(nil), body...)
	h.tasks.Go("mirror-tee", func(ctx context.Context) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.mirrorURL, bytes.NewReader(payload))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := h.httpClient.Do(req)
		if err != nil {
			return
		}
		_ = resp.Body.Close()
	})
}

// flattenHTTPHeaders keeps the first value of each header with
// lowercased names, matching the mirrored-traffic header shape.
func flattenHTTPHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

// writeJSON renders a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the shared error envelope.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Success: false,
		Result:  "ERROR",
		Errors:  []string{msg},
	})
}
