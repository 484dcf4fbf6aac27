package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/health"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", []byte("hello"), opts))

	data, err := s.Get(ctx, "k1", DefaultGetOptions())
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.Get(context.Background(), "nope", DefaultGetOptions())
	assert.ErrorIs(t, err, tserr.NotFound)
}

func TestPutRejectsEmptyKey(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.Put(context.Background(), "", []byte("x"), DefaultPutOptions())
	assert.ErrorIs(t, err, tserr.InvalidArgument)
}

func TestPutWithoutOverwriteRejectsExisting(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), opts))

	opts.Overwrite = false
	err := s.Put(ctx, "k1", []byte("v2"), opts)
	assert.ErrorIs(t, err, tserr.AlreadyExists)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), opts))

	existed, err := s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Get(ctx, "k1", DefaultGetOptions())
	assert.ErrorIs(t, err, tserr.NotFound)
}

func TestPinUnpinOnMissingKeyReturnsNotFound(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.Pin(ctx, "nope"), tserr.NotFound)
	assert.ErrorIs(t, s.Unpin(ctx, "nope"), tserr.NotFound)
}

func TestPinThenUnpinRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), opts))

	require.NoError(t, s.Pin(ctx, "k1"))
	h, ok := s.table.Lookup("k1")
	require.True(t, ok)
	assert.True(t, h.Pinned)

	require.NoError(t, s.Unpin(ctx, "k1"))
	h, ok = s.table.Lookup("k1")
	require.True(t, ok)
	assert.False(t, h.Pinned)
}

func TestAdminMigrateRejectsUnknownTier(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), opts))

	err := s.AdminMigrate(ctx, "k1", tstypes.Glacier)
	assert.ErrorIs(t, err, tserr.InvalidArgument)
}

func TestAdminMigrateNoopWhenAlreadyOnTargetTier(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), opts))

	require.NoError(t, s.AdminMigrate(ctx, "k1", tstypes.Hot))
	h, ok := s.table.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, tstypes.Hot, h.Tier)
}

func TestAdminMigrateMissingKeyReturnsNotFound(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.AdminMigrate(context.Background(), "nope", tstypes.Warm)
	assert.ErrorIs(t, err, tserr.NotFound)
}

func TestFlushDrivesDirtyKeysToDurableTier(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	opts.Mode = BestEffort
	require.NoError(t, s.Put(ctx, "k1", []byte("v1"), opts))

	h, ok := s.table.Lookup("k1")
	require.True(t, ok)
	require.True(t, h.Dirty)

	require.NoError(t, s.Flush(ctx))

	h, ok = s.table.Lookup("k1")
	require.True(t, ok)
	assert.False(t, h.Dirty)
	assert.Equal(t, tstypes.Warm, h.Tier)
}

func TestStatsReportsPerTierOccupancy(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	opts := DefaultPutOptions()
	opts.TargetTier = tstypes.Hot
	require.NoError(t, s.Put(ctx, "k1", make([]byte, 16), opts))

	stats := s.Stats()
	require.Len(t, stats.Tiers, 3)

	var hot TierStats
	for _, ts := range stats.Tiers {
		if ts.Tier == tstypes.Hot {
			hot = ts
		}
	}
	assert.Equal(t, 1, hot.Keys)
	assert.Equal(t, uint64(16), hot.Committed)
}

// alwaysDownChecker is a health.Checker stand-in for a backend whose
// own Flush-based liveness probe (health.BackendChecker) cannot be
// trusted, exercising TierConfig.HealthChecker's override path.
type alwaysDownChecker struct{}

func (alwaysDownChecker) Check(context.Context) health.Result {
	return health.Result{Healthy: false, Message: "forced down for test"}
}

func (alwaysDownChecker) Type() health.CheckType { return health.CheckTypeHTTP }

func TestTierConfigHealthCheckerOverrideIsUsed(t *testing.T) {
	cfg := Config{
		Tiers: []TierConfig{
			{
				Tier:              tstypes.Hot,
				Backend:           storage.NewHeapBackend(),
				CapacityBytes:     1 << 20,
				ReplacementPolicy: tstypes.PolicyLRU,
				HealthChecker:     alwaysDownChecker{},
			},
		},
		ManifestDir:         t.TempDir(),
		MigrationWorkers:    1,
		MigrationQueueDepth: 4,
		PolicyInterval:      time.Hour,
		ReconcilerInterval:  time.Hour,
		HealthCheck:         health.Config{Interval: 10 * time.Millisecond, Timeout: time.Second, Retries: 1},
	}

	s, err := New(cfg)
	require.NoError(t, err)
	sub := s.Subscribe()
	s.Start()
	defer s.Shutdown()

	select {
	case evt := <-sub:
		assert.Equal(t, events.EventBackendUnavail, evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the overridden health checker to mark the backend unavailable")
	}
}

func TestUpdatePolicyRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)

	rules, retainTags, pinFixedTier := s.SnapshotPolicy()
	assert.Empty(t, rules)
	assert.Empty(t, retainTags)
	assert.Empty(t, pinFixedTier)

	s.UpdatePolicy(nil, map[string]string{"keep": "forever"}, map[string]tstypes.Tier{"sticky": tstypes.Hot})
	_, retainTags, pinFixedTier = s.SnapshotPolicy()
	assert.Equal(t, "forever", retainTags["keep"])
	assert.Equal(t, tstypes.Hot, pinFixedTier["sticky"])
}
