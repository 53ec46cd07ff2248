// Package metrics exposes Prometheus instrumentation for agent runs and
// tool executions, fed from the runner's event stream.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/partforge/partforge/pkg/agent"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  prometheus.Histogram
	RunsInFlight prometheus.Gauge
	RoundsPerRun prometheus.Histogram

	// Tool metrics
	ToolExecutionsTotal      *prometheus.CounterVec
	ToolExecutionDuration    *prometheus.HistogramVec
	ToolExecutionErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "part_runs_total",
				Help: "Total number of part creation runs by status",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "part_run_duration_seconds",
				Help:    "Duration of part creation runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
			},
		),
		RunsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "part_runs_in_flight",
				Help: "Number of part creation runs currently executing",
			},
		),
		RoundsPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "part_run_rounds",
				Help:    "Tool rounds consumed per run",
				Buckets: prometheus.LinearBuckets(1, 1, 10),
			},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool_name"},
		),
		ToolExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_execution_errors_total",
				Help: "Total number of tool execution errors",
			},
			[]string{"tool_name"},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.RunsTotal)
	m.registry.MustRegister(m.RunDuration)
	m.registry.MustRegister(m.RunsInFlight)
	m.registry.MustRegister(m.RoundsPerRun)

	m.registry.MustRegister(m.ToolExecutionsTotal)
	m.registry.MustRegister(m.ToolExecutionDuration)
	m.registry.MustRegister(m.ToolExecutionErrorsTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Sink returns an agent.EventSink that records run events into these
// metrics.
func (m *Metrics) Sink() agent.EventSink {
	return &eventSink{metrics: m}
}

type eventSink struct {
	metrics *Metrics
}

// Publish implements agent.EventSink.
func (s *eventSink) Publish(event agent.Event) {
	switch event.Type {
	case agent.EventRunStarted:
		s.metrics.RunsInFlight.Inc()

	case agent.EventRunFinished:
		s.metrics.RunsInFlight.Dec()
		status := "success"
		if event.Error != "" {
			status = "error"
		}
		s.metrics.RunsTotal.WithLabelValues(status).Inc()
		s.metrics.RunDuration.Observe(event.Duration.Seconds())
		s.metrics.RoundsPerRun.Observe(float64(event.Round + 1))

	case agent.EventToolFinished:
		status := "success"
		if event.Error != "" {
			status = "error"
			s.metrics.ToolExecutionErrorsTotal.WithLabelValues(event.Tool).Inc()
		}
		s.metrics.ToolExecutionsTotal.WithLabelValues(event.Tool, status).Inc()
		s.metrics.ToolExecutionDuration.WithLabelValues(event.Tool).Observe(event.Duration.Seconds())
	}
}
