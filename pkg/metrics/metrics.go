// Package metrics exposes this worker's Prometheus collectors: pool
// occupancy, ping round-trip time, and job/turn duration. Grounded on
// kadirpekel-hector's pkg/observability/metrics.go — own registry, one
// *Vec per concern, collectors grouped by init* helpers and registered
// with MustRegister, exposed over a promhttp.HandlerFor handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds this worker's collectors.
type Metrics struct {
	registry *prometheus.Registry

	poolIdleProcesses   prometheus.Gauge
	poolActiveProcesses prometheus.Gauge
	poolInitializations prometheus.Counter
	poolInitFailures    prometheus.Counter

	pingRTT      prometheus.Histogram
	pingTimeouts prometheus.Counter

	jobsLaunched prometheus.Counter
	jobDuration  prometheus.Histogram
	turnDuration *prometheus.HistogramVec
	toolCalls    *prometheus.CounterVec
}

// New constructs a Metrics with every collector registered against a
// fresh registry.
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initPoolMetrics(namespace)
	m.initDispatchMetrics(namespace)
	m.initJobMetrics(namespace)
	return m
}

func (m *Metrics) initPoolMetrics(namespace string) {
	m.poolIdleProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "idle_processes",
		Help:      "Number of warm, ready-to-launch job processes.",
	})
	m.poolActiveProcesses = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "active_processes",
		Help:      "Number of job processes currently running a job.",
	})
	m.poolInitializations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "initializations_total",
		Help:      "Total number of job-process initialization attempts.",
	})
	m.poolInitFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "initialization_failures_total",
		Help:      "Total number of job-process initialization failures.",
	})
	m.registry.MustRegister(m.poolIdleProcesses, m.poolActiveProcesses, m.poolInitializations, m.poolInitFailures)
}

func (m *Metrics) initDispatchMetrics(namespace string) {
	m.pingRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobexec",
		Name:      "ping_rtt_seconds",
		Help:      "Parent-to-child ping round-trip time.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})
	m.pingTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobexec",
		Name:      "ping_timeouts_total",
		Help:      "Total number of missed pongs that resulted in a child kill.",
	})
	m.registry.MustRegister(m.pingRTT, m.pingTimeouts)
}

func (m *Metrics) initJobMetrics(namespace string) {
	m.jobsLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "launched_total",
		Help:      "Total number of jobs launched onto a warm process.",
	})
	m.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "duration_seconds",
		Help:      "Wall-clock duration of a job from launch to process exit.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14), // 1s to ~4.5h
	})
	m.turnDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "turn_duration_seconds",
		Help:      "Duration of one generation-pipeline turn, from commit to playout done.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
	}, []string{"outcome"})
	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "tool_calls_total",
		Help:      "Total number of tool calls executed, by tool name and outcome.",
	}, []string{"tool", "outcome"})
	m.registry.MustRegister(m.jobsLaunched, m.jobDuration, m.turnDuration, m.toolCalls)
}

// SetPoolOccupancy records the pool's current idle/active process counts.
func (m *Metrics) SetPoolOccupancy(idle, active int) {
	m.poolIdleProcesses.Set(float64(idle))
	m.poolActiveProcesses.Set(float64(active))
}

// ObserveInitialization records one job-process initialization attempt.
func (m *Metrics) ObserveInitialization(ok bool) {
	m.poolInitializations.Inc()
	if !ok {
		m.poolInitFailures.Inc()
	}
}

// ObservePingRTT records one parent/child ping round-trip.
func (m *Metrics) ObservePingRTT(rttSeconds float64) {
	m.pingRTT.Observe(rttSeconds)
}

// IncPingTimeout records one missed pong / child kill.
func (m *Metrics) IncPingTimeout() {
	m.pingTimeouts.Inc()
}

// ObserveJobLaunched records one job handed to a warm process.
func (m *Metrics) ObserveJobLaunched() {
	m.jobsLaunched.Inc()
}

// ObserveJobDuration records the wall-clock lifetime of one job.
func (m *Metrics) ObserveJobDuration(durationSeconds float64) {
	m.jobDuration.Observe(durationSeconds)
}

// ObserveTurnDuration records one generation-pipeline turn's duration,
// tagged with its outcome ("completed", "interrupted", "error").
func (m *Metrics) ObserveTurnDuration(outcome string, durationSeconds float64) {
	m.turnDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// IncToolCall records one tool invocation, tagged with its outcome
// ("ok", "tool_error", "handoff", "error").
func (m *Metrics) IncToolCall(tool, outcome string) {
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

// Handler returns an HTTP handler serving this Metrics' registry in the
// Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
