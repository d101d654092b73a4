package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Go runtime and process metrics are automatically registered by promhttp.Handler()
// so we don't need to register them explicitly here

var (
	// Guardrails metrics
	evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_guardrail_evaluations_total",
			Help: "Total number of guardrail evaluations",
		},
		[]string{"stage", "decision", "engine"},
	)

	evaluationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aegis_guardrail_evaluation_duration_seconds",
			Help:    "Guardrail evaluation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"stage", "engine"},
	)

	violationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_guardrail_violations_total",
			Help: "Total number of guardrail violations",
		},
		[]string{"type", "severity"},
	)

	evaluationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_guardrail_evaluation_errors_total",
			Help: "Total number of backend evaluation errors converted to fail-closed results",
		},
		[]string{"stage", "engine"},
	)

	// Redaction metrics
	redactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_pii_redactions_total",
			Help: "Total number of PII spans redacted",
		},
		[]string{"pii_type"},
	)

	// Tool dispatch metrics
	toolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_tool_calls_total",
			Help: "Total number of tool call dispatches",
		},
		[]string{"tool", "status"}, // status: allowed, denied, error
	)

	// Rate limit metrics
	rateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_rate_limit_hits_total",
			Help: "Total number of rate limit denials",
		},
		[]string{"endpoint"},
	)

	rateLimitAllowed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aegis_rate_limit_allowed_total",
			Help: "Total number of requests allowed by the rate limiter",
		},
		[]string{"endpoint"},
	)

	// Audit metrics
	auditRecordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aegis_audit_records_dropped_total",
			Help: "Total number of audit records dropped because the writer queue was full",
		},
	)
)

// RecordEvaluation records one completed guardrail evaluation.
func RecordEvaluation(stage, decision, engine string, duration float64) {
	evaluationsTotal.WithLabelValues(stage, decision, engine).Inc()
	evaluationDuration.WithLabelValues(stage, engine).Observe(duration)
}

// RecordViolation records one guardrail violation finding.
func RecordViolation(violationType, severity string) {
	violationsTotal.WithLabelValues(violationType, severity).Inc()
}

// RecordEvaluationError records a backend error that was converted to a
// fail-closed result.
func RecordEvaluationError(stage, engine string) {
	evaluationErrors.WithLabelValues(stage, engine).Inc()
}

// RecordRedaction records one redacted PII span.
func RecordRedaction(piiType string) {
	redactionsTotal.WithLabelValues(piiType).Inc()
}

// RecordToolCall records one tool dispatch attempt.
func RecordToolCall(tool, status string) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordRateLimitHit records a rate limit denial.
func RecordRateLimitHit(endpoint string) {
	rateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRateLimitAllowed records a request allowed by the rate limiter.
func RecordRateLimitAllowed(endpoint string) {
	rateLimitAllowed.WithLabelValues(endpoint).Inc()
}

// RecordAuditDrop records one audit record dropped under backpressure.
func RecordAuditDrop() {
	auditRecordsDropped.Inc()
}
