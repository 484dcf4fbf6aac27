package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// staleMigrationAge is how long a key may sit in StateMigrating before
// the reconciler treats the mark as abandoned by a crashed worker
// rather than in-flight under a live one.
const staleMigrationAge = 2 * time.Minute

// opTimeout bounds a single backend Stat/ListHandles/Delete call made
// during a reconciliation cycle.
const opTimeout = 10 * time.Second

// Config wires a Reconciler to the rest of the store.
type Config struct {
	Table    *placement.Table
	Backends map[tstypes.Tier]storage.Backend
	Broker   *events.Broker

	Interval time.Duration
}

// Reconciler periodically reclaims orphaned backend bytes, resolves
// migrations interrupted by a crash, and flags silently corrupted
// records.
type Reconciler struct {
	table    *placement.Table
	backends map[tstypes.Tier]storage.Backend
	broker   *events.Broker

	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// New constructs a Reconciler. Call Start to begin the sweep loop.
func New(cfg Config) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reconciler{
		table:    cfg.Table,
		backends: cfg.Backends,
		broker:   cfg.Broker,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			r.Reconcile()
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// Reconcile performs one reconciliation cycle: resolve interrupted
// migrations, reclaim orphaned backend bytes, then verify checksums.
func (r *Reconciler) Reconcile() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	referenced := make(map[tstypes.Tier]map[tstypes.Handle]struct{}, len(r.backends))
	for tier := range r.backends {
		referenced[tier] = make(map[tstypes.Handle]struct{})
	}

	var migrating []tstypes.Header
	r.table.Range(func(h tstypes.Header) {
		if h.State == tstypes.StateTombstone {
			return
		}
		if set, ok := referenced[h.Tier]; ok {
			set[h.Handle] = struct{}{}
		}
		if h.State == tstypes.StateMigrating {
			migrating = append(migrating, h)
		}
	})

	r.resolveInterruptedMigrations(migrating)
	r.reclaimOrphans(referenced)
	r.verifyChecksums()
}

// resolveInterruptedMigrations reverts any key still marked
// StateMigrating after staleMigrationAge: the migration engine always
// marks before moving bytes and reverts on any failure it observes
// itself, so a mark surviving this long can only be the residue of a
// worker that crashed mid-move. Reverting to Resident at MigratingFrom
// is always safe because the engine never deletes source bytes until
// after the destination commit lands.
func (r *Reconciler) resolveInterruptedMigrations(migrating []tstypes.Header) {
	cutoff := time.Now().Add(-staleMigrationAge)

	for _, h := range migrating {
		if h.LastAccessAt.After(cutoff) {
			continue
		}

		reverted := h.Clone()
		reverted.Tier = h.MigratingFrom
		reverted.State = tstypes.StateResident
		reverted.MigratingFrom = 0
		reverted.MigratingTo = 0

		if _, err := r.table.InsertOrUpdate(h.Key, h.Version, reverted); err != nil {
			// Already resolved by a live worker or superseded by a
			// newer write; nothing to do.
			continue
		}

		metrics.InterruptedMigrationsResolvedTotal.WithLabelValues("reverted").Inc()
		r.logger.Warn().Str("key", h.Key).Str("from_tier", h.MigratingFrom.String()).Str("to_tier", h.MigratingTo.String()).
			Msg("resolved interrupted migration by reverting to source tier")
		r.publish(events.EventRecordMigrated, h.Key, map[string]string{
			"outcome": "reverted",
			"tier":    h.MigratingFrom.String(),
		})
	}
}

// reclaimOrphans deletes any backend handle not referenced by a
// resident or migrating header for that tier. Each tier's backend is
// independent, so tiers are swept concurrently rather than one after
// another.
func (r *Reconciler) reclaimOrphans(referenced map[tstypes.Tier]map[tstypes.Handle]struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for tier, backend := range r.backends {
		tier, backend := tier, backend
		g.Go(func() error {
			r.reclaimTierOrphans(ctx, tier, backend, referenced[tier])
			return nil
		})
	}
	_ = g.Wait() // reclaimTierOrphans logs and counts its own failures; nothing to propagate
}

func (r *Reconciler) reclaimTierOrphans(ctx context.Context, tier tstypes.Tier, backend storage.Backend, want map[tstypes.Handle]struct{}) {
	handles, err := backend.ListHandles(ctx)
	if err != nil {
		r.logger.Error().Err(err).Str("tier", tier.String()).Msg("failed to list backend handles")
		return
	}

	for _, h := range handles {
		if _, ok := want[h]; ok {
			continue
		}
		if err := backend.Delete(ctx, h); err != nil {
			r.logger.Warn().Err(err).Str("tier", tier.String()).Str("handle", string(h)).Msg("failed to reclaim orphaned handle")
			continue
		}
		metrics.OrphansReclaimedTotal.WithLabelValues(tier.String()).Inc()
		r.logger.Debug().Str("tier", tier.String()).Str("handle", string(h)).Msg("reclaimed orphaned handle")
	}
}

// verifyChecksums re-stats every resident header's backend bytes and
// marks the header Corrupted on mismatch. It relies on Stat rather
// than Get to avoid paying for a full payload read on every sweep.
func (r *Reconciler) verifyChecksums() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var suspect []tstypes.Header
	r.table.Range(func(h tstypes.Header) {
		if h.State == tstypes.StateResident && !h.Corrupted {
			suspect = append(suspect, h)
		}
	})

	for _, h := range suspect {
		backend, ok := r.backends[h.Tier]
		if !ok {
			continue
		}

		_, sum, err := backend.Stat(ctx, h.Handle)
		if err != nil {
			// A transient backend error here is not evidence of
			// corruption; leave the header alone for the next cycle.
			continue
		}
		if sum == h.Checksum {
			continue
		}

		flagged := h.Clone()
		flagged.Corrupted = true
		if _, err := r.table.InsertOrUpdate(h.Key, h.Version, flagged); err != nil {
			continue
		}

		r.logger.Error().Str("key", h.Key).Str("tier", h.Tier.String()).Msg("checksum mismatch, flagged corrupted")
		r.publish(events.EventRecordCorrupted, h.Key, map[string]string{
			"tier":    h.Tier.String(),
			"backend": backend.Kind(),
		})
	}
}

func (r *Reconciler) publish(typ events.EventType, key string, metadata map[string]string) {
	if r.broker == nil {
		return
	}
	metadata["key"] = key
	r.broker.Publish(&events.Event{
		Type:     typ,
		Message:  string(typ) + ": " + key,
		Metadata: metadata,
	})
}
