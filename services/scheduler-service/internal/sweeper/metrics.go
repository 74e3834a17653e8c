package sweeper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records sweep outcomes. A nil *Metrics records nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	reminders *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Reminder sweeps by kind and result.",
		}, []string{"kind", "result"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "counselbook",
			Subsystem: "sweeper",
			Name:      "reminders_total",
			Help:      "Appointments seen by reminder sweeps, by kind and outcome (sent, failed, skipped).",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "counselbook",
			Subsystem: "sweeper",
			Name:      "run_seconds",
			Help:      "Wall time of one reminder sweep.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.reminders, m.duration)
	}
	return m
}

func (m *Metrics) observeRun(kind Kind, result string, s Summary, started time.Time) {
	if m == nil {
		return
	}
	k := string(kind)
	m.runs.WithLabelValues(k, result).Inc()
	m.reminders.WithLabelValues(k, "sent").Add(float64(s.Sent))
	m.reminders.WithLabelValues(k, "failed").Add(float64(s.Failed))
	m.reminders.WithLabelValues(k, "skipped").Add(float64(s.Skipped))
	m.duration.WithLabelValues(k).Observe(time.Since(started).Seconds())
}
