package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Storage metrics
	ObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_objects_total",
			Help: "Total number of live (non-tombstoned) keys across all buckets",
		},
	)

	BlobBytesUsed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_blob_bytes_used",
			Help: "Total bytes occupied by blob files on local disk",
		},
	)

	VersionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_versions_total",
			Help: "Total number of object versions, including delete markers",
		},
	)

	// Coordinator operation metrics
	PutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quorumvault_put_duration_seconds",
			Help:    "Time taken to accept and commit a PutObject in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GetDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quorumvault_get_duration_seconds",
			Help:    "Time taken to serve a GetObject in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeleteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quorumvault_delete_duration_seconds",
			Help:    "Time taken to accept and commit a DeleteObject in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorumvault_operations_total",
			Help: "Total number of Coordinator operations by verb and outcome",
		},
		[]string{"verb", "outcome"},
	)

	GateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quorumvault_gate_rejections_total",
			Help: "Total number of mutations refused by the replication-factor gate",
		},
		[]string{"verb"},
	)

	IntegrityFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quorumvault_integrity_failures_total",
			Help: "Total number of digest-mismatch failures detected on read",
		},
	)

	// Raft / consensus metrics
	RaftIsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_raft_is_leader",
			Help: "Whether this node is the raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_raft_term",
			Help: "Current raft term",
		},
	)

	RaftCommittedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_raft_committed_index",
			Help: "Highest committed raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_raft_applied_index",
			Help: "Last applied raft log index",
		},
	)

	ActivePeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quorumvault_active_peers",
			Help: "Number of peers (including self) currently classified Active",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quorumvault_raft_apply_duration_seconds",
			Help:    "Time taken to apply a committed raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(BlobBytesUsed)
	prometheus.MustRegister(VersionsTotal)
	prometheus.MustRegister(PutDuration)
	prometheus.MustRegister(GetDuration)
	prometheus.MustRegister(DeleteDuration)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(GateRejectionsTotal)
	prometheus.MustRegister(IntegrityFailuresTotal)
	prometheus.MustRegister(RaftIsLeader)
	prometheus.MustRegister(RaftTerm)
	prometheus.MustRegister(RaftCommittedIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(ActivePeers)
	prometheus.MustRegister(RaftApplyDuration)
}

// Handler returns the Prometheus HTTP handler, served at /metrics.
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

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
