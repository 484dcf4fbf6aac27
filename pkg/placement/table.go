package placement

import (
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// shardCount is chosen well above typical GOMAXPROCS to keep
// cross-shard lock contention negligible under concurrent CAS load.
const shardCount = 256

type shard struct {
	mu      sync.RWMutex
	entries map[string]*atomic.Pointer[tstypes.Header]
}

// Table is the sharded, lock-free-per-entry placement table.
type Table struct {
	shards [shardCount]*shard
}

// New returns an empty Table.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*atomic.Pointer[tstypes.Header])}
	}
	return t
}

func (t *Table) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return t.shards[h.Sum32()%shardCount]
}

// Lookup returns a deep-enough copy of the header currently recorded
// for key, or ok=false if the key is unknown.
func (t *Table) Lookup(key string) (header tstypes.Header, ok bool) {
	s := t.shardFor(key)

	s.mu.RLock()
	ptr, exists := s.entries[key]
	s.mu.RUnlock()
	if !exists {
		return tstypes.Header{}, false
	}

	current := ptr.Load()
	if current == nil {
		return tstypes.Header{}, false
	}
	return current.Clone(), true
}

// InsertOrUpdate installs newHeader for key if and only if the key's
// currently stored Version equals expectedVersion (0 meaning "key must
// not exist yet"). On success the returned header carries
// expectedVersion+1 and that value is what the next caller must
// present. On a version mismatch it returns tserr.CASFailed and the
// caller must re-read and retry.
func (t *Table) InsertOrUpdate(key string, expectedVersion uint64, newHeader tstypes.Header) (tstypes.Header, error) {
	s := t.shardFor(key)

	s.mu.Lock()
	ptr, exists := s.entries[key]
	if !exists {
		ptr = &atomic.Pointer[tstypes.Header]{}
		s.entries[key] = ptr
	}
	s.mu.Unlock()

	for {
		current := ptr.Load()
		var currentVersion uint64
		if current != nil {
			currentVersion = current.Version
		}
		if currentVersion != expectedVersion {
			return tstypes.Header{}, tserr.CASFailed
		}

		next := newHeader.Clone()
		next.Key = key
		next.Version = expectedVersion + 1

		if ptr.CompareAndSwap(current, &next) {
			return next.Clone(), nil
		}

		// Another writer won the race between Load and
		// CompareAndSwap; loop to reobserve the version. A
		// concurrent writer targeting a different expectedVersion
		// will fail the check above on the next iteration.
		metrics.PlacementCASRetriesTotal.Inc()
	}
}

// Remove physically deletes key's entry if its stored version still
// equals expectedVersion. Used by the coordinator's Delete once the key
// has been tombstoned and its backend bytes released.
func (t *Table) Remove(key string, expectedVersion uint64) error {
	s := t.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	ptr, exists := s.entries[key]
	if !exists {
		return tserr.NotFound
	}
	current := ptr.Load()
	if current == nil || current.Version != expectedVersion {
		return tserr.CASFailed
	}
	delete(s.entries, key)
	return nil
}

// LoadSnapshot installs headers directly, bypassing the usual CAS
// version check. It exists for startup recovery only: the manifest has
// already linearized these headers once, so re-deriving a consistent
// Version sequence through InsertOrUpdate would serve no purpose and
// would reject every entry whose Version is not 0.
func (t *Table) LoadSnapshot(headers []tstypes.Header) {
	for _, h := range headers {
		s := t.shardFor(h.Key)
		cp := h.Clone()
		ptr := &atomic.Pointer[tstypes.Header]{}
		ptr.Store(&cp)

		s.mu.Lock()
		s.entries[h.Key] = ptr
		s.mu.Unlock()
	}
}

// Range calls fn for every header in the table, whatever its state
// (resident, migrating or tombstoned). fn must not
// block for long: Range holds each shard's read lock only long enough
// to snapshot its key set, so iteration order is not linearized
// against concurrent writers, but every entry present for the whole
// scan is visited exactly once.
func (t *Table) Range(fn func(tstypes.Header)) {
	for _, s := range t.shards {
		s.mu.RLock()
		snapshot := make([]*atomic.Pointer[tstypes.Header], 0, len(s.entries))
		for _, ptr := range s.entries {
			snapshot = append(snapshot, ptr)
		}
		s.mu.RUnlock()

		for _, ptr := range snapshot {
			if h := ptr.Load(); h != nil {
				fn(h.Clone())
			}
		}
	}
}

// Len returns the number of keys currently tracked, resident or
// tombstoned.
func (t *Table) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}
