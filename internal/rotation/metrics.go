package rotation

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records per-target outcomes in a private registry so a run can be
// exported as a node_exporter textfile.
type Metrics struct {
	registry *prometheus.Registry

	targetsTotal   *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec
	lastRun        *prometheus.GaugeVec
}

// NewMetrics registers the rotation metrics in a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		targetsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbrotate_targets_total",
				Help: "Targets processed, by final state",
			},
			[]string{"state", "mode"},
		),
		targetDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbrotate_target_duration_seconds",
				Help:    "Time spent rotating one target",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"mode"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dbrotate_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
			[]string{"mode"},
		),
	}
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordOutcome counts one finished target
func (m *Metrics) RecordOutcome(o Outcome, mode string) {
	m.targetsTotal.WithLabelValues(string(o.State), mode).Inc()
	m.targetDuration.WithLabelValues(mode).Observe(o.Duration.Seconds())
}

// RecordRun stamps the completion time of a run
func (m *Metrics) RecordRun(r *Report) {
	m.lastRun.WithLabelValues(r.Mode.String()).Set(float64(r.FinishedAt.Unix()))
}

// WriteTextfile writes the registry in the text exposition format to path, atomically
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
