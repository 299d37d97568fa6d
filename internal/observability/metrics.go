package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpRequestsTotal      *prometheus.CounterVec
	httpLatencySeconds     *prometheus.HistogramVec
	attemptsStartedTotal   *prometheus.CounterVec
	attemptsFinalizedTotal *prometheus.CounterVec
	violationsTotal        *prometheus.CounterVec
	auditQueueFlushed      *prometheus.CounterVec
	staffActionsTotal      *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors of the service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulado_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simulado_http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		attemptsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulado_attempts_started_total",
			Help: "Attempts created or resumed, by outcome.",
		}, []string{"outcome"})

		attemptsFinalizedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulado_attempts_finalized_total",
			Help: "Attempts finalized, by finish reason.",
		}, []string{"reason"})

		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulado_violations_total",
			Help: "Proctoring signals counted against attempts, by kind.",
		}, []string{"kind"})

		auditQueueFlushed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulado_violation_audit_rows_total",
			Help: "Violation audit rows written by the audit worker, by path.",
		}, []string{"path"})

		staffActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simulado_staff_actions_total",
			Help: "Staff mutations written to the audit log, by action.",
		}, []string{"action"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds,
			attemptsStartedTotal, attemptsFinalizedTotal,
			violationsTotal, auditQueueFlushed, staffActionsTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// AttemptsStarted counts start calls by outcome (created, resumed, expired).
func AttemptsStarted() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsStartedTotal
}

// AttemptsFinalized counts finalizations by reason.
func AttemptsFinalized() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsFinalizedTotal
}

// Violations counts accepted proctoring signals by kind.
func Violations() *prometheus.CounterVec {
	RegisterMetrics()
	return violationsTotal
}

// AuditRows counts audit rows persisted by the worker (bulk, fallback, dropped).
func AuditRows() *prometheus.CounterVec {
	RegisterMetrics()
	return auditQueueFlushed
}

// StaffActions counts audited staff mutations by action.
func StaffActions() *prometheus.CounterVec {
	RegisterMetrics()
	return staffActionsTotal
}
