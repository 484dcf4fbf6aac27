package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// GetOptions configures a Get call.
type GetOptions struct {
	PromoteOnHit bool
}

// DefaultGetOptions returns {PromoteOnHit: true}.
func DefaultGetOptions() GetOptions {
	return GetOptions{PromoteOnHit: true}
}

// Get returns the bytes stored under key. A key already flagged
// Corrupted is fenced: Get returns Corrupted without attempting a
// backend read. If opts.PromoteOnHit is set and the key's tier is more
// than one step below Hot, Get enqueues a promotion job; the promotion
// itself happens asynchronously, after Get has already returned.
func (s *Store) Get(ctx context.Context, key string, opts GetOptions) (data []byte, err error) {
	defer s.trackRequest("get", metrics.NewTimer(), &err)

	header, ok := s.table.Lookup(key)
	if !ok || header.State == tstypes.StateTombstone {
		return nil, tserr.NotFound
	}
	if header.Corrupted {
		return nil, tserr.Corrupted
	}

	// Bump refcount for the duration of this read so the key can't be
	// picked as an eviction victim mid-flight. A lost CAS race here
	// means a concurrent writer already changed the key; re-read once
	// rather than fail the read outright.
	bumped := header.Clone()
	bumped.Refcount++
	base, err := s.table.InsertOrUpdate(key, header.Version, bumped)
	if err != nil {
		base, ok = s.table.Lookup(key)
		if !ok || base.State == tstypes.StateTombstone {
			return nil, tserr.NotFound
		}
		if base.Corrupted {
			return nil, tserr.Corrupted
		}
	}

	backend, ok := s.backends[base.Tier]
	if !ok {
		s.finishRead(key, base)
		return nil, tserr.BackendUnavailable
	}

	getErr := s.withBackendRetry(ctx, func() error {
		d, err := backend.Get(ctx, base.Handle)
		if err != nil {
			return err
		}
		data = d
		return nil
	})

	final := s.finishRead(key, base)

	if getErr != nil {
		if errors.Is(getErr, tserr.Corrupted) {
			s.markCorrupted(key, final, backend.Kind())
			return nil, tserr.Corrupted
		}
		return nil, getErr
	}

	if idx := s.indices[final.Tier]; idx != nil {
		idx.Touch(key)
	}
	if opts.PromoteOnHit && final.Tier > tstypes.Warm {
		s.engine.Enqueue(tstypes.MigrationJob{
			Key: key, FromTier: final.Tier, ToTier: tstypes.Hot,
			Reason: tstypes.ReasonPromoteOnAccess, EnqueuedAt: time.Now(),
		})
	}

	return data, nil
}

// finishRead releases the refcount taken at the start of Get and
// records the access (LastAccessAt, AccessCount), retrying its CAS a
// bounded number of times against concurrent writers.
func (s *Store) finishRead(key string, base tstypes.Header) tstypes.Header {
	h := base
	for i := 0; i < 5; i++ {
		next := h.Clone()
		if next.Refcount > 0 {
			next.Refcount--
		}
		next.LastAccessAt = time.Now()
		if next.AccessCount < math.MaxUint32 {
			next.AccessCount++
		}
		committed, err := s.table.InsertOrUpdate(key, h.Version, next)
		if err == nil {
			return committed
		}
		fresh, ok := s.table.Lookup(key)
		if !ok {
			return tstypes.Header{}
		}
		h = fresh
	}
	return h
}

func (s *Store) markCorrupted(key string, h tstypes.Header, backendKind string) {
	if h.Key == "" {
		return
	}
	flagged := h.Clone()
	flagged.Corrupted = true
	committed, err := s.table.InsertOrUpdate(key, h.Version, flagged)
	if err != nil {
		return
	}
	if s.manifest != nil {
		_ = s.manifest.Append(manifest.Record{Op: manifest.OpPut, Header: committed})
	}
	s.broker.Publish(&events.Event{
		Type:     events.EventRecordCorrupted,
		Message:  fmt.Sprintf("corrupted: %s (%s)", key, backendKind),
		Metadata: map[string]string{"key": key, "tier": h.Tier.String(), "backend": backendKind},
	})
}
