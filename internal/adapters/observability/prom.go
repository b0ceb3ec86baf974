// Package observability exports polling passes as Prometheus metrics.
package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vshulcz/Gatecounter/internal/domain"
	"github.com/vshulcz/Gatecounter/pkg/observer"
)

// PassMetrics observes pass reports and keeps per-gate series.
type PassMetrics struct {
	passes      *prometheus.CounterVec
	samples     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	counts      *prometheus.GaugeVec
	duration    prometheus.Histogram
}

var _ observer.Observer[domain.PassReport] = (*PassMetrics)(nil)

// NewPassMetrics registers the collectors on reg.
func NewPassMetrics(reg prometheus.Registerer) *PassMetrics {
	m := &PassMetrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatecounter_passes_total",
			Help: "Polling passes by result (ok, aborted).",
		}, []string{"result"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatecounter_gate_samples_total",
			Help: "Samples stored per gate.",
		}, []string{"gate"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatecounter_gate_failures_total",
			Help: "Skipped gate samples by failure stage.",
		}, []string{"gate", "stage"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatecounter_gate_last_success_timestamp_seconds",
			Help: "Timestamp of the newest stored sample per gate.",
		}, []string{"gate"}),
		counts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatecounter_gate_count",
			Help: "Cumulative counter values from the newest stored sample.",
		}, []string{"gate", "counter"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatecounter_pass_duration_seconds",
			Help:    "Wall time of a polling pass.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
	reg.MustRegister(m.passes, m.samples, m.failures, m.lastSuccess, m.counts, m.duration)
	return m
}

// Notify updates the series from one report.
func (m *PassMetrics) Notify(_ context.Context, rep domain.PassReport) error {
	result := "ok"
	if rep.Err != nil {
		result = "aborted"
	}
	m.passes.WithLabelValues(result).Inc()
	if !rep.FinishedAt.IsZero() && !rep.StartedAt.IsZero() {
		m.duration.Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	}

	for _, o := range rep.Outcomes {
		gate := o.Gate.Name
		if !o.OK() {
			m.failures.WithLabelValues(gate, string(o.Stage)).Inc()
			continue
		}
		s := o.Sample
		m.samples.WithLabelValues(gate).Inc()
		m.lastSuccess.WithLabelValues(gate).Set(float64(s.Timestamp.Unix()))
		m.counts.WithLabelValues(gate, "alarm").Set(float64(s.AlarmCount))
		m.counts.WithLabelValues(gate, "incoming").Set(float64(s.IncomingCount))
		m.counts.WithLabelValues(gate, "outgoing").Set(float64(s.OutgoingCount))
	}
	return nil
}
