package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TransitionsTotal   *prometheus.CounterVec
	DenialsTotal       *prometheus.CounterVec
	OutOfWorkflowTotal prometheus.Counter
	CreatedTotal       *prometheus.CounterVec
}

// New registers the tracking metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrack_tracking_transitions_total",
			Help: "Total number of applied transaction transitions",
		}, []string{"operation"}),
		DenialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrack_tracking_denials_total",
			Help: "Total number of refused transitions by reason",
		}, []string{"operation", "reason"}),
		OutOfWorkflowTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctrack_tracking_out_of_workflow_total",
			Help: "Total number of endorsements that left the workflow route",
		}),
		CreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctrack_tracking_created_total",
			Help: "Total number of transactions created",
		}, []string{"category"}),
	}
}

func (m *Metrics) IncrementTransition(operation string) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrementDenial(operation, reason string) {
	if m == nil {
		return
	}
	m.DenialsTotal.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) IncrementOutOfWorkflow() {
	if m == nil {
		return
	}
	m.OutOfWorkflowTotal.Inc()
}

func (m *Metrics) IncrementCreated(category string) {
	if m == nil {
		return
	}
	m.CreatedTotal.WithLabelValues(category).Inc()
}
