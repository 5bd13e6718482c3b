package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	SweepsTotal   prometheus.Counter
	RecordsTotal  *prometheus.CounterVec
	SweepDuration prometheus.Histogram
}

// New registers the overdue sweep metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SweepsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctrack_overdue_sweeps_total",
			Help: "Total number of overdue sweeps run",
		}),
		RecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrack_overdue_sweep_records_total",
			Help: "Transactions examined by overdue sweeps by outcome",
		}, []string{"outcome"}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctrack_overdue_sweep_duration_seconds",
			Help:    "Duration of one overdue sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

func (m *Metrics) ObserveSweep(start time.Time, notified, notOverdue, failed int) {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
	m.RecordsTotal.WithLabelValues("notified").Add(float64(notified))
	m.RecordsTotal.WithLabelValues("not_overdue").Add(float64(notOverdue))
	m.RecordsTotal.WithLabelValues("failed").Add(float64(failed))
	m.SweepDuration.Observe(time.Since(start).Seconds())
}
