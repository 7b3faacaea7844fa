// Package http provides the HTTP ingress adapter for the guardrails
// engine.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ValidationsTotal *prometheus.CounterVec
	BatchRecords     prometheus.Counter
	ThreatReports    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_guardrails",
				Name:      "requests_total",
				Help:      "Total number of ingress HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcp_guardrails",
				Name:      "request_duration_seconds",
				Help:      "Ingress request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ValidationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_guardrails",
				Name:      "validations_total",
				Help:      "Validation outcomes by traffic direction",
			},
			[]string{"direction", "outcome"}, // direction=request/response, outcome=allow/block/redact
		),
		BatchRecords: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_guardrails",
				Name:      "batch_records_total",
				Help:      "Total ingestion batch records processed",
			},
		),
		ThreatReports: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "mcp_guardrails",
				Name:      "threat_reports_total",
				Help:      "Total threat reports scheduled",
			},
		),
	}
}

// outcomeLabel maps a validation result to its metric label.
func outcomeLabel(allowed, modified bool) string {
	switch {
	case !allowed:
		return "block"
	case modified:
		return "redact"
	default:
		return "allow"
	}
}
