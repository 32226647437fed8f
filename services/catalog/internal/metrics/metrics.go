// Package metrics holds the catalog's Prometheus collectors, registered on
// the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "catalog"

var (
	// CounterWriteFailures counts derived-counter writes that failed after
	// the primary write had already committed.
	CounterWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "consistency",
		Name:      "counter_write_failures_total",
		Help:      "Derived counter writes that failed and were left to reconciliation.",
	}, []string{"counter"})

	// ReconcileCorrections counts values the sweep had to rewrite.
	ReconcileCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "corrections_total",
		Help:      "Derived values corrected by the reconciliation sweep.",
	}, []string{"entity"})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "runs_total",
		Help:      "Reconciliation sweeps by outcome.",
	}, []string{"outcome"})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "duration_seconds",
		Help:      "Wall time of a full reconciliation sweep.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	RatingFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rating",
		Name:      "aggregate_fallbacks_total",
		Help:      "Rating recomputations that fell back to summing review ratings in process.",
	})

	// DegradedReads counts statistics reads answered with empty results.
	DegradedReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "degraded_reads_total",
		Help:      "Statistics reads that failed and returned an empty result.",
	}, []string{"operation"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stats",
		Name:      "cache_lookups_total",
		Help:      "Statistics cache lookups by result.",
	}, []string{"result"})

	RepairJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "repair",
		Name:      "jobs_total",
		Help:      "Targeted repair jobs by outcome.",
	}, []string{"outcome"})

	QueryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "query",
		Name:      "failures_total",
		Help:      "Catalog queries that failed at the store.",
	}, []string{"operation"})
)
