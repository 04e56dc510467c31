package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jkaninda/toolgate/internal/sandbox"
)

// MetricsCollector holds all Prometheus metrics for toolgate.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Tool mediation metrics.
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Security metrics.
	SecurityViolationsTotal *prometheus.CounterVec

	// Sandbox pool metrics.
	PoolSandboxesCreated prometheus.Gauge
	PoolSandboxesInUse   prometheus.Gauge
	PoolSandboxesIdle    prometheus.Gauge

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics
// registered on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total mediated tool executions.",
		}, []string{"tool", "outcome"}),

		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Mediated tool execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),

		SecurityViolationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "security",
			Name:      "violations_total",
			Help:      "Total security violations recorded.",
		}, []string{"type", "risk"}),

		PoolSandboxesCreated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "pool",
			Name:      "sandboxes_created",
			Help:      "Live sandboxes owned by the pool.",
		}),

		PoolSandboxesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "pool",
			Name:      "sandboxes_in_use",
			Help:      "Sandboxes currently leased to calls.",
		}),

		PoolSandboxesIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "pool",
			Name:      "sandboxes_idle",
			Help:      "Idle sandboxes ready for reuse.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolgate",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.SecurityViolationsTotal,
		m.PoolSandboxesCreated,
		m.PoolSandboxesInUse,
		m.PoolSandboxesIdle,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// RecordExecution implements the proxy's Recorder hook.
func (m *MetricsCollector) RecordExecution(tool, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordViolation counts one security violation.
func (m *MetricsCollector) RecordViolation(violationType, risk string) {
	if m == nil {
		return
	}
	m.SecurityViolationsTotal.WithLabelValues(violationType, risk).Inc()
}

// SetPoolStats publishes a pool occupancy snapshot.
func (m *MetricsCollector) SetPoolStats(stats sandbox.PoolStats) {
	if m == nil {
		return
	}
	m.PoolSandboxesCreated.Set(float64(stats.Created))
	m.PoolSandboxesInUse.Set(float64(stats.InUse))
	m.PoolSandboxesIdle.Set(float64(stats.Idle))
}
