// Package metrics provides Prometheus metrics collection for the gateway.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors exposed by the gateway.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	AdmissionBlockedTotal *prometheus.CounterVec
	RateLimitedTotal      *prometheus.CounterVec

	EngineCallsTotal    *prometheus.CounterVec
	EngineCallDuration  *prometheus.HistogramVec
	ConsensusVerdicts   *prometheus.CounterVec
	ReflectionAttempts  *prometheus.HistogramVec
	SandboxRunsTotal    *prometheus.CounterVec
	SandboxRunDuration  *prometheus.HistogramVec
	CacheHitsTotal      *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec

	DatabaseQueriesTotal    *prometheus.CounterVec
	DatabaseQueryDuration   *prometheus.HistogramVec
	DatabaseConnectionsOpen prometheus.Gauge

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against a custom registerer.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "Total number of HTTP requests"},
			[]string{"service", "method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"service", "method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "http_requests_in_flight", Help: "Current number of in-flight HTTP requests"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "errors_total", Help: "Total number of errors"},
			[]string{"service", "type", "operation"},
		),
		AdmissionBlockedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "admission_blocked_total", Help: "Total requests blocked by the policy gate"},
			[]string{"layer"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "rate_limited_total", Help: "Total requests rejected by the rate limiter"},
			[]string{"scope"},
		),
		EngineCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "engine_calls_total", Help: "Total verification engine invocations"},
			[]string{"engine", "verdict"},
		),
		EngineCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_call_duration_seconds",
				Help:    "Verification engine call duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
			},
			[]string{"engine"},
		),
		ConsensusVerdicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "consensus_verdicts_total", Help: "Consensus aggregator outcomes"},
			[]string{"mode", "verdict"},
		),
		ReflectionAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reflection_attempts",
				Help:    "Number of attempts used by the self-reflection loop",
				Buckets: []float64{1, 2, 3},
			},
			[]string{"outcome"},
		),
		SandboxRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "sandbox_runs_total", Help: "Total sandboxed executions"},
			[]string{"status"},
		),
		SandboxRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandbox_run_duration_seconds",
				Help:    "Sandboxed execution duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"status"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "cache_requests_total", Help: "Cache lookups by outcome"},
			[]string{"tier", "outcome"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "circuit_breaker_state", Help: "0=closed 1=open 2=half-open"},
			[]string{"provider"},
		),
		DatabaseQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "database_queries_total", Help: "Total number of database queries"},
			[]string{"service", "operation", "status"},
		),
		DatabaseQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "database_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"service", "operation"},
		),
		DatabaseConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "database_connections_open", Help: "Current number of open database connections"},
		),
		ServiceUptime: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "service_uptime_seconds", Help: "Service uptime in seconds"},
		),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "service_info", Help: "Service information"},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.AdmissionBlockedTotal,
			m.RateLimitedTotal,
			m.EngineCallsTotal,
			m.EngineCallDuration,
			m.ConsensusVerdicts,
			m.ReflectionAttempts,
			m.SandboxRunsTotal,
			m.SandboxRunDuration,
			m.CacheHitsTotal,
			m.CircuitBreakerState,
			m.DatabaseQueriesTotal,
			m.DatabaseQueryDuration,
			m.DatabaseConnectionsOpen,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", getEnvironment()).Set(1)

	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(service, method, path, status).Inc()
	m.RequestDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError(service, errorType, operation string) {
	m.ErrorsTotal.WithLabelValues(service, errorType, operation).Inc()
}

// RecordAdmissionBlocked records a policy-gate rejection at the given layer.
func (m *Metrics) RecordAdmissionBlocked(layer string) {
	m.AdmissionBlockedTotal.WithLabelValues(layer).Inc()
}

// RecordRateLimited records a rate-limit rejection at the given scope (key/global).
func (m *Metrics) RecordRateLimited(scope string) {
	m.RateLimitedTotal.WithLabelValues(scope).Inc()
}

// RecordEngineCall records one verification engine invocation.
func (m *Metrics) RecordEngineCall(engine, verdict string, duration time.Duration) {
	m.EngineCallsTotal.WithLabelValues(engine, verdict).Inc()
	m.EngineCallDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RecordConsensusVerdict records one consensus aggregator outcome.
func (m *Metrics) RecordConsensusVerdict(mode, verdict string) {
	m.ConsensusVerdicts.WithLabelValues(mode, verdict).Inc()
}

// RecordReflectionAttempts records how many attempts the reflection loop used.
func (m *Metrics) RecordReflectionAttempts(outcome string, attempts int) {
	m.ReflectionAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordSandboxRun records one sandboxed execution.
func (m *Metrics) RecordSandboxRun(status string, duration time.Duration) {
	m.SandboxRunsTotal.WithLabelValues(status).Inc()
	m.SandboxRunDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordCacheLookup records a cache lookup outcome ("hit" or "miss") for a tier.
func (m *Metrics) RecordCacheLookup(tier, outcome string) {
	m.CacheHitsTotal.WithLabelValues(tier, outcome).Inc()
}

// SetCircuitBreakerState reports a provider's current breaker state.
func (m *Metrics) SetCircuitBreakerState(provider string, state int) {
	m.CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordDatabaseQuery records a database query outcome.
func (m *Metrics) RecordDatabaseQuery(service, operation, status string, duration time.Duration) {
	m.DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	m.DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// SetDatabaseConnections reports the number of open database connections.
func (m *Metrics) SetDatabaseConnections(count int) {
	m.DatabaseConnectionsOpen.Set(float64(count))
}

// UpdateUptime reports elapsed uptime since startTime.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// IncrementInFlight increments the in-flight request gauge.
func (m *Metrics) IncrementInFlight() { m.RequestsInFlight.Inc() }

// DecrementInFlight decrements the in-flight request gauge.
func (m *Metrics) DecrementInFlight() { m.RequestsInFlight.Dec() }

func getEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled reports whether Prometheus metrics should be exposed.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return true
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes and returns the package-level global Metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the previously initialized global Metrics instance, or nil.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalMetrics
}
