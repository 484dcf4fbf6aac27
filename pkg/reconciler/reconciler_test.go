package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func newTestReconciler(t *testing.T, table *placement.Table, backends map[tstypes.Tier]storage.Backend, broker *events.Broker) *Reconciler {
	t.Helper()
	return New(Config{Table: table, Backends: backends, Broker: broker})
}

func TestReclaimOrphansDeletesUnreferencedHandle(t *testing.T) {
	table := placement.New()
	backend := storage.NewHeapBackend()
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: backend}

	ctx := context.Background()
	orphan, _, err := backend.Put(ctx, []byte("leftover"))
	require.NoError(t, err)

	rec := newTestReconciler(t, table, backends, nil)
	rec.Reconcile()

	_, err = backend.Get(ctx, orphan)
	assert.Error(t, err, "orphaned handle should have been reclaimed")
}

func TestReclaimOrphansPreservesReferencedHandle(t *testing.T) {
	table := placement.New()
	backend := storage.NewHeapBackend()
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: backend}

	ctx := context.Background()
	handle, sum, err := backend.Put(ctx, []byte("keep"))
	require.NoError(t, err)

	_, err = table.InsertOrUpdate("keep-me", 0, tstypes.Header{
		Key: "keep-me", Tier: tstypes.Hot, State: tstypes.StateResident,
		Handle: handle, Checksum: sum, Size: 4,
	})
	require.NoError(t, err)

	rec := newTestReconciler(t, table, backends, nil)
	rec.Reconcile()

	got, err := backend.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), got)
}

func TestVerifyChecksumsFlagsCorruptedHeader(t *testing.T) {
	table := placement.New()
	backend := storage.NewHeapBackend()
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: backend}

	ctx := context.Background()
	handle, _, err := backend.Put(ctx, []byte("original"))
	require.NoError(t, err)

	_, err = table.InsertOrUpdate("flaky", 0, tstypes.Header{
		Key: "flaky", Tier: tstypes.Hot, State: tstypes.StateResident,
		Handle: handle, Checksum: 0xdeadbeef, Size: 8,
	})
	require.NoError(t, err)

	rec := newTestReconciler(t, table, backends, nil)
	rec.Reconcile()

	h, ok := table.Lookup("flaky")
	require.True(t, ok)
	assert.True(t, h.Corrupted)
}

func TestResolveInterruptedMigrationsRevertsStaleMarks(t *testing.T) {
	table := placement.New()
	backend := storage.NewHeapBackend()
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: backend, tstypes.Warm: backend}

	ctx := context.Background()
	handle, sum, err := backend.Put(ctx, []byte("mid-move"))
	require.NoError(t, err)

	_, err = table.InsertOrUpdate("stuck", 0, tstypes.Header{
		Key: "stuck", Tier: tstypes.Hot, State: tstypes.StateMigrating,
		MigratingFrom: tstypes.Hot, MigratingTo: tstypes.Warm,
		Handle: handle, Checksum: sum, Size: 8,
		LastAccessAt: time.Now().Add(-(staleMigrationAge + time.Minute)),
	})
	require.NoError(t, err)

	rec := newTestReconciler(t, table, backends, nil)
	rec.Reconcile()

	h, ok := table.Lookup("stuck")
	require.True(t, ok)
	assert.Equal(t, tstypes.StateResident, h.State)
	assert.Equal(t, tstypes.Hot, h.Tier)
}

func TestResolveInterruptedMigrationsLeavesRecentMarkAlone(t *testing.T) {
	table := placement.New()
	backend := storage.NewHeapBackend()
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: backend, tstypes.Warm: backend}

	ctx := context.Background()
	handle, sum, err := backend.Put(ctx, []byte("mid-move"))
	require.NoError(t, err)

	_, err = table.InsertOrUpdate("fresh", 0, tstypes.Header{
		Key: "fresh", Tier: tstypes.Hot, State: tstypes.StateMigrating,
		MigratingFrom: tstypes.Hot, MigratingTo: tstypes.Warm,
		Handle: handle, Checksum: sum, Size: 8,
		LastAccessAt: time.Now(),
	})
	require.NoError(t, err)

	rec := newTestReconciler(t, table, backends, nil)
	rec.Reconcile()

	h, ok := table.Lookup("fresh")
	require.True(t, ok)
	assert.Equal(t, tstypes.StateMigrating, h.State, "a recently marked migration must not be reverted out from under a live worker")
}

func TestReconcilePublishesCorruptionEvent(t *testing.T) {
	table := placement.New()
	backend := storage.NewHeapBackend()
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: backend}

	ctx := context.Background()
	handle, _, err := backend.Put(ctx, []byte("original"))
	require.NoError(t, err)

	_, err = table.InsertOrUpdate("flaky", 0, tstypes.Header{
		Key: "flaky", Tier: tstypes.Hot, State: tstypes.StateResident,
		Handle: handle, Checksum: 0xdeadbeef, Size: 8,
	})
	require.NoError(t, err)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	rec := newTestReconciler(t, table, backends, broker)
	rec.Reconcile()

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventRecordCorrupted, ev.Type)
		assert.Equal(t, "flaky", ev.Metadata["key"])
	case <-time.After(time.Second):
		t.Fatal("expected a corruption event")
	}
}
