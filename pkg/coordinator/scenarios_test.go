package coordinator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// newTestStore builds a Store over heap (Hot), bolt (Warm) and heap
// (Cold) backends, wired for the scenarios below. Capacities and
// watermarks are the caller's to set via configure.
func newTestStore(t *testing.T, configure func(cfg *Config)) *Store {
	t.Helper()

	hot := storage.NewHeapBackend()
	warm, err := storage.NewBoltBackend(filepath.Join(t.TempDir(), "warm.db"))
	require.NoError(t, err)
	cold := storage.NewHeapBackend()

	cfg := Config{
		Tiers: []TierConfig{
			{Tier: tstypes.Hot, Backend: hot, CapacityBytes: 1 << 20, ReplacementPolicy: tstypes.PolicyLRU},
			{Tier: tstypes.Warm, Backend: warm, CapacityBytes: 1 << 20, ReplacementPolicy: tstypes.PolicyLRU},
			{Tier: tstypes.Cold, Backend: cold, CapacityBytes: 1 << 20, ReplacementPolicy: tstypes.PolicyLRU},
		},
		ManifestDir:         t.TempDir(),
		MigrationWorkers:    2,
		MigrationQueueDepth: 16,
		PolicyInterval:      time.Hour, // disabled for these tests; driven manually
		ReconcilerInterval:  time.Hour,
	}
	if configure != nil {
		configure(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	s.Start()
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

// Promotion on hot access: a key resident more than one tier below Hot
// is promoted to Hot after a Get with PromoteOnHit, without the caller
// waiting on the promotion itself. A key one step below Hot (Warm) is
// not promoted on hit; only Cold/Glacier qualify.
func TestScenarioPromotionOnHotAccess(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("payload"), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))
	require.NoError(t, s.AdminMigrate(ctx, "k1", tstypes.Cold))

	h, ok := s.table.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, tstypes.Cold, h.Tier)

	data, err := s.Get(ctx, "k1", GetOptions{PromoteOnHit: true})
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.Eventually(t, func() bool {
		h, ok := s.table.Lookup("k1")
		return ok && h.Tier == tstypes.Hot
	}, 2*time.Second, 10*time.Millisecond, "key should be promoted back to Hot after access")
}

// Eviction under pressure: a put that would push a tier's occupancy
// above its configured watermark_high triggers a synchronous eviction
// of the LRU victim even though raw capacity has room.
func TestScenarioEvictionUnderPressure(t *testing.T) {
	s := newTestStore(t, func(cfg *Config) {
		cfg.Tiers[0].CapacityBytes = 100
		cfg.Tiers[0].WatermarkHigh = 0.8
		cfg.Tiers[0].WatermarkLow = 0.4
	})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "a", make([]byte, 30), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))
	require.NoError(t, s.Put(ctx, "b", make([]byte, 30), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))

	capacity, reserved, committed := s.accountant.Stats(tstypes.Hot)
	require.Equal(t, uint64(100), capacity)
	assert.Equal(t, uint64(60), reserved+committed)

	// Third put: 60+30=90 still fits under the hard 100-byte cap, but
	// exceeds watermark_high (80), so "a" (the LRU victim) must be
	// evicted to Warm before this put is committed.
	require.NoError(t, s.Put(ctx, "c", make([]byte, 30), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))

	require.Eventually(t, func() bool {
		h, ok := s.table.Lookup("a")
		return ok && h.Tier == tstypes.Warm
	}, 2*time.Second, 10*time.Millisecond, "LRU victim should have been evicted to Warm")

	_, reserved, committed = s.accountant.Stats(tstypes.Hot)
	assert.Equal(t, uint64(60), reserved+committed, "hot tier should settle back to 60 bytes used (b + c)")
}

// Durable write: Mode Durable on a key whose target tier is volatile
// writes directly to the nearest durable tier and schedules a
// promotion back to the originally requested tier.
func TestScenarioDurableWrite(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("payload"), PutOptions{TargetTier: tstypes.Hot, Mode: Durable, Overwrite: true}))

	h, ok := s.table.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, tstypes.Warm, h.Tier, "durable put should land directly on the durable tier")
	assert.False(t, h.Dirty)

	require.Eventually(t, func() bool {
		h, ok := s.table.Lookup("k1")
		return ok && h.Tier == tstypes.Hot
	}, 2*time.Second, 10*time.Millisecond, "key should be promoted back to the requested tier")
}

// Migration vs delete race: deleting a key mid-migration tombstones it
// at whichever tier Lookup currently reports; the migration's own CAS
// detects the race and cleans up its own write rather than leaving an
// orphan copy resident anywhere.
func TestScenarioMigrationVsDeleteRace(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("payload"), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))

	go func() { _ = s.AdminMigrate(ctx, "k1", tstypes.Warm) }()
	existed, err := s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, existed)

	require.Eventually(t, func() bool {
		_, ok := s.table.Lookup("k1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "key should end up fully removed, not left resident on either tier")
}

// Corruption: once a key's header is flagged Corrupted (set directly
// here), Get is fenced and fails with Corrupted.
func TestScenarioCorruption(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k1", []byte("payload"), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))

	h, ok := s.table.Lookup("k1")
	require.True(t, ok)
	flagged := h.Clone()
	flagged.Corrupted = true
	_, err := s.table.InsertOrUpdate("k1", h.Version, flagged)
	require.NoError(t, err)

	_, err = s.Get(ctx, "k1", GetOptions{})
	assert.ErrorIs(t, err, tserr.Corrupted)
}

// Pin forbids eviction: a pinned key is never chosen as an eviction
// victim, even under capacity pressure; the coordinator evicts the
// next-oldest unpinned key instead.
func TestScenarioPinForbidsEviction(t *testing.T) {
	s := newTestStore(t, func(cfg *Config) {
		cfg.Tiers[0].CapacityBytes = 100
	})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "pinned", make([]byte, 40), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true, Pin: true}))
	require.NoError(t, s.Put(ctx, "other", make([]byte, 40), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))

	// This put cannot fit alongside both existing keys (40+40+40=120 >
	// 100); "pinned" must survive and "other" must be the one evicted.
	require.NoError(t, s.Put(ctx, "third", make([]byte, 40), PutOptions{TargetTier: tstypes.Hot, Mode: BestEffort, Overwrite: true}))

	require.Eventually(t, func() bool {
		h, ok := s.table.Lookup("other")
		return ok && h.Tier == tstypes.Warm
	}, 2*time.Second, 10*time.Millisecond, "unpinned key should be the eviction victim")

	h, ok := s.table.Lookup("pinned")
	require.True(t, ok)
	assert.Equal(t, tstypes.Hot, h.Tier, "pinned key must never be evicted")
}
