package accountant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func TestReserveWithinCapacity(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 100})

	deficit, err := a.Reserve(tstypes.Hot, 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), deficit)

	capacity, reserved, committed := a.Stats(tstypes.Hot)
	assert.Equal(t, uint64(100), capacity)
	assert.Equal(t, uint64(60), reserved)
	assert.Equal(t, uint64(0), committed)
}

func TestReserveExceedingCapacityReportsDeficit(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 100})

	_, err := a.Reserve(tstypes.Hot, 80)
	require.NoError(t, err)

	deficit, err := a.Reserve(tstypes.Hot, 50)
	assert.ErrorIs(t, err, tserr.NoCapacity)
	assert.Equal(t, uint64(30), deficit)
}

func TestCommitMovesReservedToCommitted(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 100})

	_, err := a.Reserve(tstypes.Hot, 40)
	require.NoError(t, err)
	a.Commit(tstypes.Hot, 40)

	_, reserved, committed := a.Stats(tstypes.Hot)
	assert.Equal(t, uint64(0), reserved)
	assert.Equal(t, uint64(40), committed)
}

func TestReleaseGivesBackReservation(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 100})

	_, err := a.Reserve(tstypes.Hot, 40)
	require.NoError(t, err)
	a.Release(tstypes.Hot, 40)

	_, reserved, _ := a.Stats(tstypes.Hot)
	assert.Equal(t, uint64(0), reserved)

	// full capacity should be available again
	_, err = a.Reserve(tstypes.Hot, 100)
	assert.NoError(t, err)
}

func TestFreeReducesCommitted(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 100})

	_, err := a.Reserve(tstypes.Hot, 40)
	require.NoError(t, err)
	a.Commit(tstypes.Hot, 40)
	a.Free(tstypes.Hot, 40)

	_, _, committed := a.Stats(tstypes.Hot)
	assert.Equal(t, uint64(0), committed)
}

func TestWatermarkReflectsOccupancy(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 200})

	_, err := a.Reserve(tstypes.Hot, 100)
	require.NoError(t, err)
	a.Commit(tstypes.Hot, 100)

	assert.InDelta(t, 0.5, a.Watermark(tstypes.Hot), 0.001)
}

func TestUnconfiguredTierHasZeroCapacity(t *testing.T) {
	a := New(map[tstypes.Tier]uint64{tstypes.Hot: 200})

	_, err := a.Reserve(tstypes.Glacier, 1)
	assert.ErrorIs(t, err, tserr.NoCapacity)
	assert.Equal(t, float64(1), a.Watermark(tstypes.Glacier))
}
