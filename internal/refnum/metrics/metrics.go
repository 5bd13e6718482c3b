package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	IssuedTotal   *prometheus.CounterVec
	FailuresTotal *prometheus.CounterVec
	IssueLatency  prometheus.Histogram
}

// New registers the reference number metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrack_refnum_issued_total",
			Help: "Total number of reference numbers issued",
		}, []string{"category"}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrack_refnum_failures_total",
			Help: "Total number of reference number requests that could not be served",
		}, []string{"category"}),
		IssueLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctrack_refnum_issue_duration_seconds",
			Help:    "Time spent obtaining the next sequence value",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
}

func (m *Metrics) IncrementIssued(category string) {
	if m == nil {
		return
	}
	m.IssuedTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementFailures(category string) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(category).Inc()
}

func (m *Metrics) ObserveIssueLatency(start time.Time) {
	if m == nil {
		return
	}
	m.IssueLatency.Observe(time.Since(start).Seconds())
}
