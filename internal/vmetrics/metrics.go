// Package vmetrics registers the prometheus collectors shared across the
// cluster, engine, replication, query, and breaker subsystems and exposes
// the scrape handler the operator HTTP surface mounts at /metrics.
package vmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster / discovery
	ClusterStateVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vindex_cluster_state_version",
		Help: "Currently applied cluster state version on this node.",
	})
	IsMaster = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vindex_is_master",
		Help: "1 if this node is the current elected master, else 0.",
	})
	NodesTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vindex_nodes_total",
		Help: "Known nodes by role and health status.",
	}, []string{"role", "status"})

	// Shard engine
	EngineOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vindex_engine_ops_total",
		Help: "Engine operations processed, by op type.",
	}, []string{"op"})
	EngineFlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vindex_engine_flush_duration_seconds",
		Help:    "Time to flush a shard's in-memory buffer to a segment.",
		Buckets: prometheus.DefBuckets,
	})
	TranslogSizeBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vindex_translog_size_bytes",
		Help: "Current on-disk size of a shard's active translog generation.",
	}, []string{"shard"})

	// Replication
	ReplicationAckLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vindex_replication_ack_latency_seconds",
		Help:    "Time from primary write to consistency level satisfied.",
		Buckets: prometheus.DefBuckets,
	}, []string{"consistency"})
	ReplicationFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vindex_replication_failures_total",
		Help: "Replica writes that failed or reported an out-of-order sequence number.",
	})

	// Query
	QueryPhaseLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vindex_query_phase_duration_seconds",
		Help:    "Coordinator-observed latency of each search phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})
	QueryCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vindex_query_cache_hits_total",
		Help: "Coordinator query cache hits.",
	})
	QueryCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vindex_query_cache_misses_total",
		Help: "Coordinator query cache misses.",
	})

	// Circuit breakers
	BreakerUsedBytes = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vindex_breaker_used_bytes",
		Help: "Estimated memory reserved per circuit breaker category.",
	}, []string{"category"})
	BreakerTrippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vindex_breaker_tripped_total",
		Help: "Times a reservation was refused by a circuit breaker category.",
	}, []string{"category"})

	// Snapshots
	SnapshotFilesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vindex_snapshot_files_uploaded_total",
		Help: "Files newly uploaded to the snapshot repository (checksum miss).",
	})
	SnapshotFilesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vindex_snapshot_files_skipped_total",
		Help: "Files skipped during a snapshot because the repository already held that checksum.",
	})
)

func init() {
	prometheus.MustRegister(
		ClusterStateVersion, IsMaster, NodesTotal,
		EngineOpsTotal, EngineFlushDuration, TranslogSizeBytes,
		ReplicationAckLatency, ReplicationFailuresTotal,
		QueryPhaseLatency, QueryCacheHits, QueryCacheMisses,
		BreakerUsedBytes, BreakerTrippedTotal,
		SnapshotFilesUploaded, SnapshotFilesSkipped,
	)
}

// Handler returns the Prometheus scrape endpoint for the operator HTTP server.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration and records it to a histogram.
type Timer struct{ start time.Time }

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// ObserveSeconds records elapsed seconds against observer.
func (t Timer) ObserveSeconds(observer prometheus.Observer) {
	observer.Observe(time.Since(t.start).Seconds())
}
