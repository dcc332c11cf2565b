// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the loot pool consensus engine.
var (
	// Counters.
	SubmissionsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_submissions_ingested_total",
			Help: "Total number of submissions accepted, by outcome",
		},
		[]string{"pool_type", "outcome"},
	)

	SubmissionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_submissions_rejected_total",
			Help: "Total number of submissions rejected, by reason",
		},
		[]string{"pool_type", "reason"},
	)

	ItemsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_items_dropped_total",
			Help: "Total number of undecodable item blobs dropped from submissions",
		},
		[]string{"pool_type"},
	)

	PoolsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pools_created_total",
			Help: "Total number of pool rows created lazily by ingestion",
		},
		[]string{"pool_type"},
	)

	ConsensusRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_runs_total",
			Help: "Total number of consensus recomputation runs",
		},
		[]string{"pool_type", "status"},
	)

	ConsensusPoolsRecomputedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consensus_pools_recomputed_total",
			Help: "Total number of individual pool recomputations",
		},
		[]string{"pool_type", "status"},
	)

	// Gauges.
	DirtyPools = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dirty_pools",
			Help: "Number of pools awaiting consensus recomputation at the last run",
		},
		[]string{"pool_type"},
	)

	SchedulerLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consensus_scheduler_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last consensus scheduler run",
		},
		[]string{"pool_type"},
	)

	// Histograms.
	ConsensusRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "consensus_run_duration_seconds",
			Help:    "Duration of consensus recomputation runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool_type"},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pool_ingest_duration_seconds",
			Help:    "Duration of submission ingestion calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordSubmissionIngested increments the accepted submission counter.
func RecordSubmissionIngested(poolType, outcome string) {
	SubmissionsIngestedTotal.WithLabelValues(poolType, outcome).Inc()
}

// RecordSubmissionRejected increments the rejected submission counter.
func RecordSubmissionRejected(poolType, reason string) {
	SubmissionsRejectedTotal.WithLabelValues(poolType, reason).Inc()
}

// RecordItemsDropped adds dropped undecodable blobs.
func RecordItemsDropped(poolType string, count int) {
	if count > 0 {
		ItemsDroppedTotal.WithLabelValues(poolType).Add(float64(count))
	}
}

// RecordPoolCreated increments the pool creation counter.
func RecordPoolCreated(poolType string) {
	PoolsCreatedTotal.WithLabelValues(poolType).Inc()
}

// RecordConsensusRun increments the run counter with a status label.
func RecordConsensusRun(poolType, status string) {
	ConsensusRunsTotal.WithLabelValues(poolType, status).Inc()
}

// RecordPoolRecomputed increments the per-pool recomputation counter.
func RecordPoolRecomputed(poolType, status string) {
	ConsensusPoolsRecomputedTotal.WithLabelValues(poolType, status).Inc()
}

// SetDirtyPools records how many pools a run found dirty.
func SetDirtyPools(poolType string, count int) {
	DirtyPools.WithLabelValues(poolType).Set(float64(count))
}

// SetSchedulerLastRun updates the last-run timestamp for the pool type.
func SetSchedulerLastRun(poolType string) {
	SchedulerLastRun.WithLabelValues(poolType).SetToCurrentTime()
}

// ObserveConsensusRunDuration records a run duration.
func ObserveConsensusRunDuration(poolType string, seconds float64) {
	ConsensusRunDuration.WithLabelValues(poolType).Observe(seconds)
}

// ObserveIngestDuration records an ingestion duration.
func ObserveIngestDuration(d time.Duration) {
	IngestDuration.Observe(d.Seconds())
}
