package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// PutMode controls whether Put must land on a durable tier before
// returning.
type PutMode string

const (
	BestEffort PutMode = "best_effort"
	Durable    PutMode = "durable"
)

// PutOptions configures a Put call. The zero value is not usable;
// start from DefaultPutOptions.
type PutOptions struct {
	TargetTier tstypes.Tier
	Mode       PutMode
	Overwrite  bool
	Pin        bool
	Tags       map[string]string
}

// DefaultPutOptions returns {TargetTier: Hot, Mode: BestEffort,
// Overwrite: true}.
func DefaultPutOptions() PutOptions {
	return PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}
}

// Put writes data under key. If the target tier's capacity is
// exhausted, Put triggers one synchronous forced eviction from that
// tier and retries the reservation once before failing with
// NoCapacity. If opts.Mode is Durable and the target tier is volatile,
// the bytes are written directly to the nearest durable tier instead
// and a promotion back to the target tier is scheduled.
func (s *Store) Put(ctx context.Context, key string, data []byte, opts PutOptions) (err error) {
	defer s.trackRequest("put", metrics.NewTimer(), &err)

	if err := validateKey(key); err != nil {
		return err
	}
	if len(opts.Tags) > tstypes.MaxUserTags {
		return tserr.InvalidArgument
	}
	backend, ok := s.backends[opts.TargetTier]
	if !ok {
		return fmt.Errorf("%w: unknown tier %s", tserr.InvalidArgument, opts.TargetTier)
	}
	size := uint64(len(data))
	capacity, _, _ := s.accountant.Stats(opts.TargetTier)
	if size > capacity {
		return fmt.Errorf("%w: record of %d bytes exceeds %s capacity of %d", tserr.InvalidArgument, size, opts.TargetTier, capacity)
	}

	existing, exists := s.table.Lookup(key)
	liveExisting := exists && existing.State != tstypes.StateTombstone
	if liveExisting && !opts.Overwrite {
		return tserr.AlreadyExists
	}

	writeTier := opts.TargetTier
	if opts.Mode == Durable && backend.DurabilityClass() != tstypes.Durable {
		if durableTier, ok := s.nearestDurableTier(opts.TargetTier); ok {
			writeTier = durableTier
			backend = s.backends[durableTier]
		}
	}

	if err := s.reserveWithEviction(ctx, writeTier, size); err != nil {
		return err
	}

	var handle tstypes.Handle
	var checksum uint64
	putErr := s.withBackendRetry(ctx, func() error {
		h, sum, err := backend.Put(ctx, data)
		if err != nil {
			return err
		}
		handle, checksum = h, sum
		return nil
	})
	if putErr != nil {
		s.accountant.Release(writeTier, size)
		return putErr
	}

	now := time.Now()
	header := tstypes.Header{
		Key:          key,
		Size:         size,
		Checksum:     checksum,
		CreatedAt:    now,
		LastAccessAt: now,
		Tier:         writeTier,
		State:        tstypes.StateResident,
		Pinned:       opts.Pin,
		Dirty:        backend.DurabilityClass() != tstypes.Durable,
		UserTags:     opts.Tags,
		Handle:       handle,
	}

	var expected uint64
	if exists {
		expected = existing.Version
	}
	committed, err := s.table.InsertOrUpdate(key, expected, header)
	if err != nil {
		_ = backend.Delete(ctx, handle)
		s.accountant.Release(writeTier, size)
		return fmt.Errorf("put raced a concurrent writer for %q: %w", key, tserr.CASFailed)
	}
	s.accountant.Commit(writeTier, size)

	if liveExisting && (existing.Tier != writeTier || existing.Handle != handle) {
		if oldBackend, ok := s.backends[existing.Tier]; ok {
			if err := oldBackend.Delete(ctx, existing.Handle); err != nil {
				log.WithKey(key).Warn().Err(err).Msg("failed to delete superseded copy, orphan left for reconciler")
			}
		}
		s.accountant.Free(existing.Tier, existing.Size)
		if idx := s.indices[existing.Tier]; idx != nil {
			idx.Remove(key)
		}
	}

	if idx := s.indices[writeTier]; idx != nil {
		idx.Touch(key)
	}

	if s.manifest != nil {
		if err := s.manifest.Append(manifestRecord(committed)); err != nil {
			log.WithKey(key).Error().Err(err).Msg("manifest append failed after put")
		}
	}

	if writeTier != opts.TargetTier {
		// Wrote to the durable tier in place of the requested volatile
		// target; schedule the promotion the caller asked for.
		s.engine.Enqueue(tstypes.MigrationJob{
			Key: key, FromTier: writeTier, ToTier: opts.TargetTier,
			Reason: tstypes.ReasonAdmin, EnqueuedAt: now,
		})
	}

	s.broker.Publish(&events.Event{
		Type:     events.EventRecordPut,
		Message:  "put: " + key,
		Metadata: map[string]string{"key": key, "tier": writeTier.String()},
	})

	return nil
}

// reserveWithEviction reserves size bytes on tier, forcing one
// synchronous eviction of tier's replacement-index victim to the next
// tier down if the reservation does not initially fit, or if granting
// it would push the tier's occupancy above its configured
// watermark_high.
func (s *Store) reserveWithEviction(ctx context.Context, tier tstypes.Tier, size uint64) error {
	if s.wouldExceedHigh(tier, size) {
		// Best effort: if there's nothing to evict yet (empty index,
		// all keys pinned) fall through and let the Reserve below
		// decide on the tier's actual remaining capacity.
		_ = s.forceEvict(ctx, tier)
	}
	if _, err := s.accountant.Reserve(tier, size); err == nil {
		return nil
	}
	if err := s.forceEvict(ctx, tier); err != nil {
		return tserr.NoCapacity
	}
	if _, err := s.accountant.Reserve(tier, size); err != nil {
		return tserr.NoCapacity
	}
	return nil
}

// wouldExceedHigh reports whether reserving size more bytes on tier
// would push (reserved+committed)/capacity above tier's watermark_high.
func (s *Store) wouldExceedHigh(tier tstypes.Tier, size uint64) bool {
	high, ok := s.watermarkHigh[tier]
	if !ok || high <= 0 {
		return false
	}
	capacity, reserved, committed := s.accountant.Stats(tier)
	if capacity == 0 {
		return false
	}
	return float64(reserved+committed+size)/float64(capacity) > high
}

func (s *Store) forceEvict(ctx context.Context, tier tstypes.Tier) error {
	idx := s.indices[tier]
	if idx == nil {
		return tserr.NoCapacity
	}
	next, ok := s.nextTier(tier)
	if !ok {
		return tserr.NoCapacity // nothing colder to push to
	}

	key, ok := idx.VictimExcept(func(k string) bool {
		h, ok := s.table.Lookup(k)
		return !ok || h.Pinned || h.Refcount > 0
	})
	if !ok {
		return tserr.NoCapacity
	}
	header, ok := s.table.Lookup(key)
	if !ok || header.Tier != tier {
		return tserr.NoCapacity
	}

	timer := metrics.NewTimer()
	if _, err := s.engine.MigrateNow(ctx, header, next, tstypes.ReasonEvictionDemand); err != nil {
		return err
	}
	metrics.EvictionsTotal.WithLabelValues(tier.String(), string(tstypes.ReasonEvictionDemand)).Inc()
	timer.ObserveDurationVec(metrics.EvictionDuration, tier.String())
	return nil
}

// withBackendRetry retries fn with exponential backoff up to
// s.retries.MaxAttempts times, returning BackendUnavailable (still
// wrapping fn's last error, so errors.Is matches either) if the budget
// is exhausted, or Timeout if ctx is done first.
func (s *Store) withBackendRetry(ctx context.Context, fn func() error) error {
	backoff := s.retries.BaseBackoff
	var lastErr error
	for attempt := 0; attempt < s.retries.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == s.retries.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return tserr.Timeout
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.retries.MaxBackoff {
			backoff = s.retries.MaxBackoff
		}
	}
	return fmt.Errorf("%w: %w", tserr.BackendUnavailable, lastErr)
}

func validateKey(key string) error {
	if len(key) < tstypes.MinKeyLen || len(key) > tstypes.MaxKeyLen {
		return fmt.Errorf("%w: key length %d outside [%d,%d]", tserr.InvalidArgument, len(key), tstypes.MinKeyLen, tstypes.MaxKeyLen)
	}
	return nil
}
