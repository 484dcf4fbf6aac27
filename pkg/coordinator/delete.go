package coordinator

import (
	"context"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Delete removes key if it exists. It is idempotent: deleting an
// absent or already-tombstoned key returns (false, nil) rather than an
// error. Deleting a key mid-migration tombstones it at its current
// tier (the migration source, or the destination if the migration has
// already committed by the time Delete observes the header); either
// way the migration's own CAS against the placement table detects the
// race and cleans up its own partial write, so no tier is ever left
// with an orphaned copy.
func (s *Store) Delete(ctx context.Context, key string) (existed bool, err error) {
	defer s.trackRequest("delete", metrics.NewTimer(), &err)

	for attempt := 0; attempt < 5; attempt++ {
		header, ok := s.table.Lookup(key)
		if !ok || header.State == tstypes.StateTombstone {
			return false, nil
		}

		tomb := header.Clone()
		tomb.State = tstypes.StateTombstone
		committed, err := s.table.InsertOrUpdate(key, header.Version, tomb)
		if err != nil {
			continue // lost the race to a concurrent writer; re-read and retry
		}

		if backend, ok := s.backends[header.Tier]; ok {
			if err := backend.Delete(ctx, header.Handle); err != nil {
				log.WithKey(key).Warn().Err(err).Msg("backend delete failed, orphan left for reconciler")
			}
		}
		s.accountant.Free(header.Tier, header.Size)
		if idx := s.indices[header.Tier]; idx != nil {
			idx.Remove(key)
		}
		if s.manifest != nil {
			_ = s.manifest.Append(manifest.Record{Op: manifest.OpDelete, Header: committed})
		}
		// Best effort: physically drop the tombstone now rather than
		// waiting for the reconciler. A concurrent writer that raced
		// this Remove just leaves the tombstone in place for later.
		_ = s.table.Remove(key, committed.Version)

		s.broker.Publish(&events.Event{
			Type:     events.EventRecordDeleted,
			Message:  "delete: " + key,
			Metadata: map[string]string{"key": key},
		})
		return true, nil
	}

	return false, tserr.Timeout
}
