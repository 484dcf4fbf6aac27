/*
Package metrics provides Prometheus metrics collection and exposition for
the tier store.

Metrics are registered at package init and exposed via an HTTP handler
for scraping. They cover occupancy per tier, request/eviction/migration
counts and latency, backend operation outcomes, manifest and
reconciliation activity.

# Metrics Catalog

Occupancy:

tierstore_keys_resident{tier}:
  - Type: Gauge
  - Resident (non-tombstone) key count per tier.

tierstore_bytes_resident{tier}:
  - Type: Gauge
  - Committed bytes per tier.

tierstore_tier_capacity_bytes{tier}:
  - Type: Gauge
  - Configured capacity per tier.

tierstore_tier_watermark_ratio{tier}:
  - Type: Gauge
  - (reserved+committed)/capacity per tier.

Placement:

tierstore_placement_cas_retries_total, tierstore_placement_cas_conflicts_total:
  - Type: Counter
  - Placement table CAS retry/conflict counts.

Requests:

tierstore_requests_total{operation, outcome}:
  - Type: Counter
  - One increment per coordinator Put/Get/Delete/Pin/Unpin/Flush/
    AdminMigrate call, labeled by outcome ("ok" or "error").

tierstore_request_duration_seconds{operation}:
  - Type: Histogram

Eviction and migration:

tierstore_evictions_total{tier, reason}, tierstore_eviction_duration_seconds{tier}:
  - Type: Counter / Histogram

tierstore_migrations_total{from_tier, to_tier, reason},
tierstore_migrations_failed_total{from_tier, to_tier, reason},
tierstore_migration_duration_seconds{from_tier, to_tier}:
  - Type: Counter / Counter / Histogram

tierstore_migration_queue_depth, tierstore_migration_workers_busy:
  - Type: Gauge

Policy:

tierstore_policy_evaluation_duration_seconds, tierstore_policy_evaluation_cycles_total:
  - Type: Histogram / Counter

tierstore_policy_jobs_enqueued_total{rule}:
  - Type: Counter

Backends:

tierstore_backend_ops_total{backend, op, outcome}, tierstore_backend_op_duration_seconds{backend, op},
tierstore_backend_errors_total{backend, class}:
  - Type: Counter / Histogram / Counter

Manifest:

tierstore_manifest_appends_total, tierstore_manifest_checkpoint_duration_seconds,
tierstore_manifest_wal_bytes:
  - Type: Counter / Histogram / Gauge

Reconciliation:

tierstore_reconciliation_duration_seconds, tierstore_reconciliation_cycles_total,
tierstore_orphans_reclaimed_total{tier}, tierstore_interrupted_migrations_resolved_total{outcome}:
  - Type: Histogram / Counter / Counter / Counter

# Usage

	timer := metrics.NewTimer()
	// ... perform operation ...
	timer.ObserveDurationVec(metrics.RequestDuration, "put")

	http.Handle("/metrics", metrics.Handler())
	http.Handle("/health", metrics.HealthHandler())
	http.Handle("/ready", metrics.ReadyHandler())
	http.Handle("/live", metrics.LivenessHandler())
*/
package metrics
