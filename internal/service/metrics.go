package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"launch-alerts/internal/scheduler"
)

// Metrics records per-cycle pass outcomes.
type Metrics struct {
	passes      *prometheus.CounterVec
	candidates  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics creates the cycle metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "passes_total",
			Help:      "Completed cycle passes by result.",
		}, []string{"cycle", "result"}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "candidates_total",
			Help:      "Candidate outcomes by cycle.",
		}, []string{"cycle", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "pass_duration_seconds",
			Help:      "Duration of cycle passes.",
			Buckets:   []float64{0.1, 1, 5, 30, 60, 300, 900, 1800},
		}, []string{"cycle"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful pass.",
		}, []string{"cycle"}),
	}
}

// Register adds the metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.passes, m.candidates, m.duration, m.lastSuccess} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Observe is a scheduler pass hook.
func (m *Metrics) Observe(cycle string, stats scheduler.Stats, err error, took time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	} else {
		m.lastSuccess.WithLabelValues(cycle).SetToCurrentTime()
	}
	m.passes.WithLabelValues(cycle, result).Inc()
	m.duration.WithLabelValues(cycle).Observe(took.Seconds())

	m.candidates.WithLabelValues(cycle, "sent").Add(float64(stats.Sent))
	m.candidates.WithLabelValues(cycle, "skipped").Add(float64(stats.Skipped))
	m.candidates.WithLabelValues(cycle, "failed").Add(float64(stats.Failed))
}
