package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Flush blocks until every key marked Dirty (written best-effort to a
// volatile tier, with no durable copy yet) has a durable copy. It
// drives each dirty key through the migration engine to its nearest
// durable tier, then flushes every backend's own write buffer.
func (s *Store) Flush(ctx context.Context) (err error) {
	defer s.trackRequest("flush", metrics.NewTimer(), &err)

	var dirty []tstypes.Header
	s.table.Range(func(h tstypes.Header) {
		if h.State == tstypes.StateResident && h.Dirty {
			dirty = append(dirty, h)
		}
	})

	for _, h := range dirty {
		durableTier, ok := s.nearestDurableTier(h.Tier)
		if !ok || durableTier == h.Tier {
			continue // nothing durable to move this key to; leave dirty
		}
		if _, err := s.engine.MigrateNow(ctx, h, durableTier, tstypes.ReasonAdmin); err != nil {
			if errors.Is(err, tserr.Timeout) {
				return tserr.Timeout
			}
			// Best effort: a capacity or backend failure here leaves
			// the key dirty for the next Flush rather than failing the
			// whole call over one key.
			continue
		}
	}

	for tier, backend := range s.backends {
		if err := backend.Flush(ctx); err != nil {
			return fmt.Errorf("%w: flush %s: %v", tserr.BackendUnavailable, tier, err)
		}
	}
	return nil
}
