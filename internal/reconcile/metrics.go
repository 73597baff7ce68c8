package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultCommitted = "committed"
	resultFailed    = "failed"
	resultCancelled = "cancelled"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outagecal_cycles_total",
		Help: "Reconciliation cycles by result (committed, failed, cancelled).",
	}, []string{"result"})
	eventsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outagecal_events_created_total",
		Help: "Events created for fingerprints observed for the first time.",
	})
	eventsRefreshedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outagecal_events_refreshed_total",
		Help: "Active events observed again and refreshed.",
	})
	eventsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outagecal_events_removed_total",
		Help: "Active events tombstoned because a cycle no longer observed them.",
	})
	observationsRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outagecal_observations_rejected_total",
		Help: "Observations rejected because they could not be fingerprinted.",
	})
	observationsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outagecal_observations_duplicate_total",
		Help: "Observations folded into another observation of the same cycle.",
	})
	cycleDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "outagecal_cycle_duration_seconds",
		Help:    "Wall time of committed reconciliation cycles.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)
