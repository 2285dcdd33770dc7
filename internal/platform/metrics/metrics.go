package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	TransitionsCommitted *prometheus.CounterVec
	TransitionsRejected  *prometheus.CounterVec
	SignaturesRecorded   *prometheus.CounterVec
	SignaturesRejected   prometheus.Counter
	AuditEntriesAppended prometheus.Counter
	ReviewOutcomes       *prometheus.CounterVec
	AllocationConflicts  prometheus.Counter
	TrainingAcks         prometheus.Counter
	TransitionDuration   prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return newWith(prometheus.DefaultRegisterer)
}

// NewForTest registers against a private registry so test suites can
// instantiate metrics repeatedly without duplicate-collector panics.
func NewForTest() *Metrics {
	return newWith(prometheus.NewRegistry())
}

func newWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionsCommitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recordvault_transitions_committed_total",
			Help: "Committed lifecycle transitions by record type and target state",
		}, []string{"record_type", "to_state"}),
		TransitionsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recordvault_transitions_rejected_total",
			Help: "Refused transition requests by error code",
		}, []string{"code"}),
		SignaturesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recordvault_signatures_recorded_total",
			Help: "Electronic signatures recorded by role",
		}, []string{"role"}),
		SignaturesRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "recordvault_signatures_rejected_total",
			Help: "Signature attempts rejected (reauth, duplicate, order)",
		}),
		AuditEntriesAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "recordvault_audit_entries_total",
			Help: "Audit trail entries appended",
		}),
		ReviewOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recordvault_review_outcomes_total",
			Help: "Periodic review outcomes recorded",
		}, []string{"outcome"}),
		AllocationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "recordvault_allocation_conflicts_total",
			Help: "Identifier allocation attempts that failed transiently",
		}),
		TrainingAcks: factory.NewCounter(prometheus.CounterOpts{
			Name: "recordvault_training_acknowledgements_total",
			Help: "Training acknowledgements recorded",
		}),
		TransitionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "recordvault_transition_duration_seconds",
			Help:    "Wall time of transition commits including audit append",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
