package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Placement metrics
	KeysResident = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tierstore_keys_resident",
			Help: "Number of resident keys by tier",
		},
		[]string{"tier"},
	)

	BytesResident = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tierstore_bytes_resident",
			Help: "Bytes occupied by resident keys by tier",
		},
		[]string{"tier"},
	)

	TierCapacityBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tierstore_tier_capacity_bytes",
			Help: "Configured capacity in bytes by tier",
		},
		[]string{"tier"},
	)

	TierWatermark = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tierstore_tier_watermark_ratio",
			Help: "Occupancy ratio (used/capacity) by tier",
		},
		[]string{"tier"},
	)

	PlacementCASRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tierstore_placement_cas_retries_total",
			Help: "Total number of CAS retries against the placement table",
		},
	)

	PlacementCASConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tierstore_placement_cas_conflicts_total",
			Help: "Total number of CAS conflicts that exhausted their retry budget",
		},
	)

	// Coordinator request metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_requests_total",
			Help: "Total number of coordinator requests by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tierstore_request_duration_seconds",
			Help:    "Coordinator request duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Eviction metrics
	EvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_evictions_total",
			Help: "Total number of keys evicted by tier and reason",
		},
		[]string{"tier", "reason"},
	)

	EvictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tierstore_eviction_duration_seconds",
			Help:    "Time taken to select and evict a replacement victim, by tier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	// Migration metrics
	MigrationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_migrations_total",
			Help: "Total number of completed migrations by from tier, to tier and reason",
		},
		[]string{"from_tier", "to_tier", "reason"},
	)

	MigrationsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_migrations_failed_total",
			Help: "Total number of migrations that failed or were abandoned",
		},
		[]string{"from_tier", "to_tier", "reason"},
	)

	MigrationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tierstore_migration_duration_seconds",
			Help:    "Migration duration in seconds by from tier and to tier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"from_tier", "to_tier"},
	)

	MigrationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tierstore_migration_queue_depth",
			Help: "Current number of migration jobs queued",
		},
	)

	MigrationWorkersBusy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tierstore_migration_workers_busy",
			Help: "Current number of migration workers holding a key lease",
		},
	)

	// Policy metrics
	PolicyEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tierstore_policy_evaluation_duration_seconds",
			Help:    "Time taken for one policy evaluation sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PolicyEvaluationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tierstore_policy_evaluation_cycles_total",
			Help: "Total number of policy evaluation sweeps completed",
		},
	)

	PolicyJobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_policy_jobs_enqueued_total",
			Help: "Total number of migration jobs enqueued by a policy rule",
		},
		[]string{"rule"},
	)

	// Backend metrics
	BackendOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_backend_ops_total",
			Help: "Total number of backend operations by backend kind, op and outcome",
		},
		[]string{"backend", "op", "outcome"},
	)

	BackendOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tierstore_backend_op_duration_seconds",
			Help:    "Backend operation duration in seconds by backend kind and op",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	BackendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_backend_errors_total",
			Help: "Total number of backend errors by backend kind and error class",
		},
		[]string{"backend", "class"},
	)

	// Manifest metrics
	ManifestAppendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tierstore_manifest_appends_total",
			Help: "Total number of records appended to the manifest WAL",
		},
	)

	ManifestCheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tierstore_manifest_checkpoint_duration_seconds",
			Help:    "Time taken to write a manifest checkpoint in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ManifestWALBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tierstore_manifest_wal_bytes",
			Help: "Current size in bytes of the uncheckpointed manifest WAL segment",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tierstore_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tierstore_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	OrphansReclaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_orphans_reclaimed_total",
			Help: "Total number of orphaned handles reclaimed by the reconciler",
		},
		[]string{"tier"},
	)

	InterruptedMigrationsResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tierstore_interrupted_migrations_resolved_total",
			Help: "Total number of migrations left mid-flight by a crash and resolved on recovery",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(KeysResident)
	prometheus.MustRegister(BytesResident)
	prometheus.MustRegister(TierCapacityBytes)
	prometheus.MustRegister(TierWatermark)
	prometheus.MustRegister(PlacementCASRetriesTotal)
	prometheus.MustRegister(PlacementCASConflictsTotal)

	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)

	prometheus.MustRegister(EvictionsTotal)
	prometheus.MustRegister(EvictionDuration)

	prometheus.MustRegister(MigrationsTotal)
	prometheus.MustRegister(MigrationsFailedTotal)
	prometheus.MustRegister(MigrationDuration)
	prometheus.MustRegister(MigrationQueueDepth)
	prometheus.MustRegister(MigrationWorkersBusy)

	prometheus.MustRegister(PolicyEvaluationDuration)
	prometheus.MustRegister(PolicyEvaluationCyclesTotal)
	prometheus.MustRegister(PolicyJobsEnqueuedTotal)

	prometheus.MustRegister(BackendOpsTotal)
	prometheus.MustRegister(BackendOpDuration)
	prometheus.MustRegister(BackendErrorsTotal)

	prometheus.MustRegister(ManifestAppendsTotal)
	prometheus.MustRegister(ManifestCheckpointDuration)
	prometheus.MustRegister(ManifestWALBytes)

	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(OrphansReclaimedTotal)
	prometheus.MustRegister(InterruptedMigrationsResolvedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
