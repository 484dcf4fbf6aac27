package migration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/accountant"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/replacement"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func newTestEngine(t *testing.T) (*Engine, *placement.Table, *accountant.Accountant, map[tstypes.Tier]storage.Backend) {
	t.Helper()

	table := placement.New()
	acct := accountant.New(map[tstypes.Tier]uint64{
		tstypes.Hot:  1 << 20,
		tstypes.Warm: 1 << 20,
	})
	backends := map[tstypes.Tier]storage.Backend{
		tstypes.Hot:  storage.NewHeapBackend(),
		tstypes.Warm: storage.NewHeapBackend(),
	}
	indices := map[tstypes.Tier]*replacement.Index{
		tstypes.Hot:  replacement.New(tstypes.PolicyLRU),
		tstypes.Warm: replacement.New(tstypes.PolicyLRU),
	}

	engine := NewEngine(Config{
		Table:      table,
		Accountant: acct,
		Backends:   backends,
		Indices:    indices,
		Workers:    2,
		QueueDepth: 16,
	})
	return engine, table, acct, backends
}

func putResident(t *testing.T, table *placement.Table, acct *accountant.Accountant, backends map[tstypes.Tier]storage.Backend, key string, tier tstypes.Tier, data []byte) tstypes.Header {
	t.Helper()
	ctx := context.Background()

	_, err := acct.Reserve(tier, uint64(len(data)))
	require.NoError(t, err)

	handle, sum, err := backends[tier].Put(ctx, data)
	require.NoError(t, err)
	acct.Commit(tier, uint64(len(data)))

	header := tstypes.Header{
		Key:      key,
		Size:     uint64(len(data)),
		Checksum: sum,
		Tier:     tier,
		State:    tstypes.StateResident,
		Handle:   handle,
	}
	committed, err := table.InsertOrUpdate(key, 0, header)
	require.NoError(t, err)
	return committed
}

func TestMigrationMovesBytesAndUpdatesPlacement(t *testing.T) {
	engine, table, acct, backends := newTestEngine(t)
	engine.Start()
	defer engine.Stop()

	putResident(t, table, acct, backends, "k1", tstypes.Hot, []byte("payload"))

	engine.Enqueue(tstypes.MigrationJob{
		Key: "k1", FromTier: tstypes.Hot, ToTier: tstypes.Warm, Reason: tstypes.ReasonAgeThreshold,
	})

	require.Eventually(t, func() bool {
		h, ok := table.Lookup("k1")
		return ok && h.Tier == tstypes.Warm
	}, 2*time.Second, 10*time.Millisecond)

	h, ok := table.Lookup("k1")
	require.True(t, ok)

	data, err := backends[tstypes.Warm].Get(context.Background(), h.Handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, reserved, committed := acct.Stats(tstypes.Hot)
	assert.Equal(t, uint64(0), reserved)
	assert.Equal(t, uint64(0), committed)
}

func TestMigrationDropsJobForDeletedKey(t *testing.T) {
	engine, table, _, _ := newTestEngine(t)
	engine.Start()
	defer engine.Stop()

	// Job references a key with no placement entry at all.
	engine.Enqueue(tstypes.MigrationJob{
		Key: "ghost", FromTier: tstypes.Hot, ToTier: tstypes.Warm, Reason: tstypes.ReasonAgeThreshold,
	})

	time.Sleep(50 * time.Millisecond)
	_, ok := table.Lookup("ghost")
	assert.False(t, ok)
}

func TestMigrationSkipsPinnedKeyForEvictionDemand(t *testing.T) {
	engine, table, acct, backends := newTestEngine(t)
	engine.Start()
	defer engine.Stop()

	h := putResident(t, table, acct, backends, "pinned-key", tstypes.Hot, []byte("x"))
	h.Pinned = true
	_, err := table.InsertOrUpdate("pinned-key", h.Version, h)
	require.NoError(t, err)

	engine.Enqueue(tstypes.MigrationJob{
		Key: "pinned-key", FromTier: tstypes.Hot, ToTier: tstypes.Warm, Reason: tstypes.ReasonEvictionDemand,
	})

	time.Sleep(50 * time.Millisecond)
	got, ok := table.Lookup("pinned-key")
	require.True(t, ok)
	assert.Equal(t, tstypes.Hot, got.Tier, "pinned key must not be evicted")
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	// Do not Start the engine so nothing drains the queue.

	accepted := 0
	for i := 0; i < 64; i++ {
		if engine.Enqueue(tstypes.MigrationJob{Key: "k", FromTier: tstypes.Hot, ToTier: tstypes.Warm}) {
			accepted++
		}
	}
	assert.Equal(t, 16, accepted)
}
