package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Conveyor runs and steps.
// A disabled Metrics value is a safe no-op.
type Metrics struct {
	config MetricsConfig

	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepRetries   *prometheus.CounterVec

	watchCycles *prometheus.CounterVec
	activeRuns  prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of orchestration runs started",
			},
			[]string{"mode"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of orchestration runs completed",
			},
			[]string{"mode", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of orchestration runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of step executions by terminal status",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step executions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		stepRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retry attempts",
			},
			[]string{"step"},
		),
		watchCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "watch_cycles_total",
				Help:      "Watch-mode cycles by outcome (run, skipped)",
			},
			[]string{"outcome"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Number of orchestration runs currently in flight",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.stepsExecuted, m.stepDuration, m.stepRetries,
		m.watchCycles, m.activeRuns,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return m, nil
}

// Enabled reports whether metrics collection is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.config.Enabled
}

// RunStarted records the start of an orchestration run.
func (m *Metrics) RunStarted(mode string) {
	if !m.Enabled() {
		return
	}
	m.runsStarted.WithLabelValues(mode).Inc()
	m.activeRuns.Inc()
}

// RunCompleted records the completion of an orchestration run.
func (m *Metrics) RunCompleted(mode, status string, d time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(mode, status).Inc()
	m.runDuration.WithLabelValues(mode).Observe(d.Seconds())
	m.activeRuns.Dec()
}

// WatchCycle records a watch-mode cycle outcome ("run" or "skipped").
func (m *Metrics) WatchCycle(outcome string) {
	if !m.Enabled() {
		return
	}
	m.watchCycles.WithLabelValues(outcome).Inc()
}

// TaskStarted implements workflow.MetricsSink.
func (m *Metrics) TaskStarted(string) {}

// TaskCompleted implements workflow.MetricsSink.
func (m *Metrics) TaskCompleted(id, status string, d time.Duration) {
	if !m.Enabled() {
		return
	}
	m.stepsExecuted.WithLabelValues(id, status).Inc()
	m.stepDuration.WithLabelValues(id).Observe(d.Seconds())
}

// TaskRetried implements workflow.MetricsSink.
func (m *Metrics) TaskRetried(id string, _ int) {
	if !m.Enabled() {
		return
	}
	m.stepRetries.WithLabelValues(id).Inc()
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve starts the metrics HTTP endpoint. It blocks until the server
// stops and is intended to run in its own goroutine.
func (m *Metrics) Serve() error {
	if !m.Enabled() {
		return nil
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return http.ListenAndServe(m.config.ListenAddress, mux)
}
