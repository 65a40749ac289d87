package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Admission outcomes; reason is empty unless the request was rejected or failed
	AdmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_outcomes_total",
			Help: "Admission pipeline outcomes by command kind and reason",
		},
		[]string{"kind", "outcome", "reason"},
	)

	LedgerDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_ledger_denials_total",
			Help: "Quota reservations refused, by the counter that ran out",
		},
		[]string{"scope"},
	)

	DuplicateHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_duplicate_hits_total",
			Help: "Requests refused as repeats of recent identical content",
		},
		[]string{"kind"},
	)

	ReservedTokens = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_reserved_tokens_total",
			Help: "Tokens reserved against daily budgets before reconciliation",
		},
	)

	BackendCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_backend_calls_total",
			Help: "Generative backend calls by result",
		},
		[]string{"result"},
	)

	BackendLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_backend_call_duration_seconds",
			Help:    "Generative backend call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admission_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"breaker"},
	)

	Decisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_reviewer_decisions_total",
			Help: "Reviewer decisions on pending requests by decision and final status",
		},
		[]string{"decision", "status"},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_reply_deliveries_total",
			Help: "Outbound reply deliveries by result",
		},
		[]string{"result"},
	)

	AuditDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_audit_dropped_total",
			Help: "Audit entries dropped because the buffer was full",
		},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
