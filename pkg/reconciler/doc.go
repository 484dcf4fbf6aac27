/*
Package reconciler runs a ticker-driven background sweep that detects
and repairs drift between the placement table (the system of record
for which tier holds a key) and the bytes actually present in each
tier's backend.

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciliation Loop                        │
	│                   (Every 10 seconds)                        │
	└────────────────┬─────────────────────────────────────────┘
	                 │
	    ┌────────────┴────────────┐
	    │                         │
	    ▼                         ▼
	┌───────────────────┐   ┌─────────────────────┐
	│ Reclaim orphans   │   │ Verify checksums    │
	└─────┬─────────────┘   └──────┬──────────────┘
	      │                        │
	      ▼                        ▼
	  List backend              Stat resident
	  handles per tier          headers, compare
	      │                        checksum
	      ▼                        │
	  Diff against                 ▼
	  placement table          Mark Corrupted,
	  handles; delete          publish event
	  unreferenced

# Two Kinds of Drift

Orphaned bytes: a handle present in a backend but not referenced by
any resident header. This happens when a migration or delete commits
to the placement table and manifest but the corresponding backend
Delete fails, or the process crashes between the two (pkg/migration's
copy-before-delete ordering logs this case rather than retrying it
inline, on the theory that a background sweep is a better place for
slow cleanup than a foreground operation).

Silent corruption: a resident header whose backend bytes no longer
match the recorded checksum — bit rot, a truncated write that a crash
hid from the immediate Put, or external tampering with a backend's
storage file. The reconciler marks the header Corrupted so subsequent
reads fail fast with tserr.Corrupted instead of returning bad bytes,
and publishes an event for operator attention.

# Core Component

	rec := reconciler.New(reconciler.Config{
		Table:    table,
		Backends: backends,
		Broker:   broker,
	})
	rec.Start()
	defer rec.Stop()

Like pkg/policy's evaluator, the reconciler is stateless across
cycles: every sweep re-derives its view of drift from the current
placement table and backend contents, so a missed or interrupted cycle
is corrected by the next one.

# Safety

The reconciler never deletes a handle still referenced by the
placement table, and it only reclaims a handle once it has listed the
backend's full handle set and diffed it against every resident header
currently pointing at that tier — it never acts on a single handle in
isolation. On the rare case of a race between a reclaim scan and a
concurrent migration writing a brand-new handle, the new header is
already visible in the table snapshot taken at the start of the cycle,
so the new handle is never mistaken for an orphan from an earlier
cycle; should a write land between the snapshot and the delete it only
means the next cycle's snapshot includes it and nothing is reclaimed.

# See Also

  - pkg/migration - source of most orphaned-bytes drift
  - pkg/placement - the table this package reads, never writes
    directly (corruption marking goes through the table's own
    InsertOrUpdate CAS path)
  - pkg/events - how corruption and reclamation are surfaced
*/
package reconciler
