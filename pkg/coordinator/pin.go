package coordinator

import (
	"context"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Pin marks key as exempt from eviction. Pinning an absent key returns
// NotFound.
func (s *Store) Pin(ctx context.Context, key string) (err error) {
	defer s.trackRequest("pin", metrics.NewTimer(), &err)
	return s.setPinned(key, true, manifest.OpPin, events.EventRecordPinned)
}

// Unpin clears a key's pinned flag, returning it to normal eviction
// consideration. Unpinning an absent key returns NotFound.
func (s *Store) Unpin(ctx context.Context, key string) (err error) {
	defer s.trackRequest("unpin", metrics.NewTimer(), &err)
	return s.setPinned(key, false, manifest.OpUnpin, events.EventRecordUnpinned)
}

func (s *Store) setPinned(key string, pinned bool, op manifest.Op, evt events.EventType) error {
	for attempt := 0; attempt < 5; attempt++ {
		header, ok := s.table.Lookup(key)
		if !ok || header.State == tstypes.StateTombstone {
			return tserr.NotFound
		}
		if header.Pinned == pinned {
			return nil
		}

		next := header.Clone()
		next.Pinned = pinned
		committed, err := s.table.InsertOrUpdate(key, header.Version, next)
		if err != nil {
			continue
		}

		if s.manifest != nil {
			_ = s.manifest.Append(manifest.Record{Op: op, Header: committed})
		}
		s.broker.Publish(&events.Event{
			Type:     evt,
			Message:  string(op) + ": " + key,
			Metadata: map[string]string{"key": key},
		})
		return nil
	}
	return tserr.Timeout
}
