package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pool / node metrics (§4.I, §8 invariant 1)
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shipyard_nodes_total",
			Help: "Total number of nodes by pool and state",
		},
		[]string{"pool_id", "state"},
	)

	PoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shipyard_pools_total",
			Help: "Total number of pools by state",
		},
		[]string{"state"},
	)

	// Task-factory expansion (§4.F)
	FactoryExpansionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipyard_factory_expansion_duration_seconds",
			Help:    "Time taken to expand a task factory into descriptors",
			Buckets: prometheus.DefBuckets,
		},
	)

	TasksExpandedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_tasks_expanded_total",
			Help: "Total number of task descriptors produced by factory expansion",
		},
		[]string{"kind"},
	)

	// Dependency graph (§4.G)
	GraphCompileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipyard_graph_compile_duration_seconds",
			Help:    "Time taken to compile a job's dependency graph",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Image distribution / P2P replication (§4.D, §4.E)
	ImagesDistributedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_images_distributed_total",
			Help: "Total number of image distributions by strategy",
		},
		[]string{"strategy"},
	)

	ChunkTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_p2p_chunk_transfers_total",
			Help: "Total number of P2P chunk transfers by outcome",
		},
		[]string{"outcome"},
	)

	ChunkTransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipyard_p2p_chunk_transfer_duration_seconds",
			Help:    "Time taken to pull a single chunk from a peer",
			Buckets: prometheus.DefBuckets,
		},
	)

	PeersBlacklistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipyard_p2p_peers_blacklisted_total",
			Help: "Total number of peers blacklisted for repeated chunk-hash mismatches",
		},
	)

	// Data movement (§4.H)
	IngressBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_ingress_bytes_total",
			Help: "Total bytes transferred by ingress scope",
		},
		[]string{"scope"},
	)

	EgressBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shipyard_egress_bytes_total",
			Help: "Total bytes transferred by egress operations",
		},
	)

	IngressSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_ingress_skipped_total",
			Help: "Total number of ingress units skipped due to an existing idempotency marker",
		},
		[]string{"scope"},
	)

	// Pool lifecycle controller (§4.I)
	PoolReadyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipyard_pool_ready_duration_seconds",
			Help:    "Time from allocating to ready for a pool",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	NodeRecoveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_node_recovery_attempts_total",
			Help: "Total number of unusable-node recovery attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Federation proxy (§4.J)
	FederationQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shipyard_federation_queue_depth",
			Help: "Current federation action queue depth by status",
		},
		[]string{"federation_id", "status"},
	)

	FederationActionsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipyard_federation_actions_processed_total",
			Help: "Total number of federation actions processed by outcome",
		},
		[]string{"outcome"},
	)

	FederationSubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shipyard_federation_submit_duration_seconds",
			Help:    "Time taken to submit a federated action to the selected pool",
			Buckets: prometheus.DefBuckets,
		},
	)

	FederationIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shipyard_federation_is_leader",
			Help: "Whether this proxy instance currently holds the leader lease (1 = leader, 0 = follower)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		NodesTotal,
		PoolsTotal,
		FactoryExpansionDuration,
		TasksExpandedTotal,
		GraphCompileDuration,
		ImagesDistributedTotal,
		ChunkTransfersTotal,
		ChunkTransferDuration,
		PeersBlacklistedTotal,
		IngressBytesTotal,
		EgressBytesTotal,
		IngressSkippedTotal,
		PoolReadyDuration,
		NodeRecoveryAttemptsTotal,
		FederationQueueDepth,
		FederationActionsProcessedTotal,
		FederationSubmitDuration,
		FederationIsLeader,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
