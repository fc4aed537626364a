package telemetry

import (
	"costa/internal/costa"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records stage outcomes. It implements costa.Observer.
type Metrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "costa_stage_duration_seconds",
			Help:    "Wall time of one stage invocation.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"stage", "status"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "costa_stage_runs_total",
			Help: "Finished stage invocations.",
		}, []string{"stage", "status"}),
	}
}

func (m *Metrics) Observe(ev costa.StageEvent) {
	if ev.Phase == costa.PhaseStarted {
		return
	}
	stage, status := ev.Stage.String(), string(ev.Phase)
	m.duration.WithLabelValues(stage, status).Observe(ev.Duration.Seconds())
	m.runs.WithLabelValues(stage, status).Inc()
}
