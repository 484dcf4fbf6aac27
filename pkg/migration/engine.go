package migration

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/cuemby/tierstore/pkg/accountant"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/replacement"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// opTimeout bounds how long a single backend Get/Put/Delete inside a
// migration may take before the job is abandoned.
const opTimeout = 30 * time.Second

// Config wires an Engine to the rest of the store.
type Config struct {
	Table      *placement.Table
	Accountant *accountant.Accountant
	Backends   map[tstypes.Tier]storage.Backend
	Indices    map[tstypes.Tier]*replacement.Index
	Manifest   *manifest.Manifest
	Workers    int
	QueueDepth int
}

// Engine is the migration job queue and its worker pool.
type Engine struct {
	table      *placement.Table
	accountant *accountant.Accountant
	backends   map[tstypes.Tier]storage.Backend
	indices    map[tstypes.Tier]*replacement.Index
	manifest   *manifest.Manifest

	queue  chan tstypes.MigrationJob
	leases sync.Map // key (string) -> struct{}

	workers int
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

// NewEngine constructs an Engine. Call Start to spin up workers.
func NewEngine(cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = min(4, runtime.NumCPU())
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 1024
	}

	return &Engine{
		table:      cfg.Table,
		accountant: cfg.Accountant,
		backends:   cfg.Backends,
		indices:    cfg.Indices,
		manifest:   cfg.Manifest,
		queue:      make(chan tstypes.MigrationJob, depth),
		workers:    workers,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the worker pool.
func (e *Engine) Start() {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.runWorker()
	}
}

// Stop signals workers to drain and waits for them to exit.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

// Enqueue submits a job. If the queue is full the job is dropped: the
// caller relies on the next policy evaluation sweep to re-derive the
// same need,.
func (e *Engine) Enqueue(job tstypes.MigrationJob) bool {
	select {
	case e.queue <- job:
		metrics.MigrationQueueDepth.Set(float64(len(e.queue)))
		return true
	default:
		metrics.MigrationsFailedTotal.WithLabelValues(job.FromTier.String(), job.ToTier.String(), string(job.Reason)).Inc()
		return false
	}
}

// QueueDepth reports the current number of jobs waiting.
func (e *Engine) QueueDepth() int {
	return len(e.queue)
}

func (e *Engine) runWorker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case job := <-e.queue:
			metrics.MigrationQueueDepth.Set(float64(len(e.queue)))
			e.process(job)
		}
	}
}

func (e *Engine) process(job tstypes.MigrationJob) {
	if _, loaded := e.leases.LoadOrStore(job.Key, struct{}{}); loaded {
		// Another worker already holds this key's lease; drop the
		// job, the holder's migration supersedes it.
		return
	}
	defer e.leases.Delete(job.Key)

	header, ok := e.table.Lookup(job.Key)
	if !ok || header.State == tstypes.StateTombstone {
		return // key gone by the time this job was dequeued
	}
	if header.Tier != job.FromTier {
		return // already moved since the job was enqueued
	}
	if (header.Pinned || header.Refcount > 0) && job.Reason == tstypes.ReasonEvictionDemand {
		return // pinned or in-flight-read keys are never evicted
	}

	metrics.MigrationWorkersBusy.Inc()
	defer metrics.MigrationWorkersBusy.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if _, err := e.migrateLocked(ctx, header, job.ToTier, job.Reason); err != nil {
		metrics.MigrationsFailedTotal.WithLabelValues(job.FromTier.String(), job.ToTier.String(), string(job.Reason)).Inc()
	}
}

// MigrateNow performs a synchronous migration of header's key to toTier,
// for callers (admin_migrate, forced eviction during put) that need the
// result rather than fire-and-forget queuing. It blocks until it can take
// the key's lease or ctx is done, so it never races a worker already
// moving the same key.
func (e *Engine) MigrateNow(ctx context.Context, header tstypes.Header, toTier tstypes.Tier, reason tstypes.MigrationReason) (tstypes.Header, error) {
	for {
		if _, loaded := e.leases.LoadOrStore(header.Key, struct{}{}); !loaded {
			break
		}
		select {
		case <-ctx.Done():
			return tstypes.Header{}, tserr.Timeout
		case <-time.After(5 * time.Millisecond):
		}
	}
	defer e.leases.Delete(header.Key)

	fresh, ok := e.table.Lookup(header.Key)
	if !ok || fresh.State == tstypes.StateTombstone {
		return tstypes.Header{}, tserr.NotFound
	}
	return e.migrateLocked(ctx, fresh, toTier, reason)
}

// migrateLocked does the actual two-phase move. Callers must hold
// header.Key's lease.
func (e *Engine) migrateLocked(ctx context.Context, header tstypes.Header, toTier tstypes.Tier, reason tstypes.MigrationReason) (tstypes.Header, error) {
	fromTier := header.Tier
	timer := metrics.NewTimer()
	logger := log.WithKey(header.Key)

	// revertMark undoes the migrating mark on any failure path after
	// it lands, so a key never sits in StateMigrating once this caller
	// has given up on the job; the reconciler only needs to resolve
	// marks left by a crashed process, not a live one's own retries.
	revertMark := func(m tstypes.Header) {
		reverted := m.Clone()
		reverted.State = tstypes.StateResident
		reverted.MigratingFrom = 0
		reverted.MigratingTo = 0
		_, _ = e.table.InsertOrUpdate(header.Key, m.Version, reverted)
	}

	// Mark the key as migrating in the placement table (and manifest)
	// before moving any bytes, so a crash between here and the final
	// commit leaves a durable trail the reconciler can resolve: the
	// source bytes are untouched at this point, so reverting to
	// Resident at fromTier is always safe.
	mark := header.Clone()
	mark.State = tstypes.StateMigrating
	mark.MigratingFrom = fromTier
	mark.MigratingTo = toTier
	// LastAccessAt doubles as "when this mark was made": the
	// reconciler uses it to distinguish a live migration (lease held,
	// about to complete or revert) from one abandoned by a crash.
	mark.LastAccessAt = time.Now()
	marked, err := e.table.InsertOrUpdate(header.Key, header.Version, mark)
	if err != nil {
		return tstypes.Header{}, tserr.CASFailed
	}
	if e.manifest != nil {
		if err := e.manifest.Append(manifest.Record{Op: manifest.OpMigrate, Header: marked}); err != nil {
			logger.Warn().Err(err).Msg("manifest append failed after marking migration start")
		}
	}

	deficit, err := e.accountant.Reserve(toTier, header.Size)
	if err != nil {
		logger.Warn().Uint64("deficit", deficit).Str("to_tier", toTier.String()).Msg("migration reservation failed")
		revertMark(marked)
		return tstypes.Header{}, tserr.NoCapacity
	}

	srcBackend := e.backends[fromTier]
	dstBackend := e.backends[toTier]

	data, err := srcBackend.Get(ctx, header.Handle)
	if err != nil {
		logger.Error().Err(err).Msg("migration source read failed")
		e.accountant.Release(toTier, header.Size)
		revertMark(marked)
		return tstypes.Header{}, tserr.BackendUnavailable
	}

	newHandle, sum, err := dstBackend.Put(ctx, data)
	if err != nil {
		logger.Error().Err(err).Msg("migration destination write failed")
		e.accountant.Release(toTier, header.Size)
		revertMark(marked)
		return tstypes.Header{}, tserr.BackendUnavailable
	}

	newHeader := marked.Clone()
	newHeader.Tier = toTier
	newHeader.MigratingFrom = 0
	newHeader.MigratingTo = 0
	newHeader.State = tstypes.StateResident
	newHeader.Handle = newHandle
	newHeader.Checksum = sum
	newHeader.Dirty = dstBackend.DurabilityClass() != tstypes.Durable

	committed, err := e.table.InsertOrUpdate(header.Key, marked.Version, newHeader)
	if err != nil {
		// Lost the CAS race against a concurrent put/delete for this
		// key: undo the destination write rather than leave orphaned
		// bytes, and give the reservation back.
		_ = dstBackend.Delete(ctx, newHandle)
		e.accountant.Release(toTier, header.Size)
		return tstypes.Header{}, tserr.CASFailed
	}

	e.accountant.Commit(toTier, header.Size)

	if e.manifest != nil {
		if err := e.manifest.Append(manifest.Record{Op: manifest.OpMigrate, Header: committed}); err != nil {
			logger.Error().Err(err).Msg("manifest append failed after migration commit")
		}
	}

	// Only now, with the new location durably the system of record,
	// reclaim the old bytes and old tier's capacity.
	if err := srcBackend.Delete(ctx, header.Handle); err != nil {
		logger.Warn().Err(err).Msg("migration source cleanup failed, bytes orphaned for reconciler")
	}
	e.accountant.Free(fromTier, header.Size)

	if idx := e.indices[fromTier]; idx != nil {
		idx.Remove(header.Key)
	}
	if idx := e.indices[toTier]; idx != nil {
		idx.Touch(header.Key)
	}

	metrics.MigrationsTotal.WithLabelValues(fromTier.String(), toTier.String(), string(reason)).Inc()
	timer.ObserveDurationVec(metrics.MigrationDuration, fromTier.String(), toTier.String())
	return committed, nil
}
