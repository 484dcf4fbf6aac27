package placement

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func TestInsertOrUpdateFirstInsertRequiresVersionZero(t *testing.T) {
	tbl := New()

	h, err := tbl.InsertOrUpdate("k1", 0, tstypes.Header{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.Version)

	_, err = tbl.InsertOrUpdate("k1", 0, tstypes.Header{Size: 20})
	assert.ErrorIs(t, err, tserr.CASFailed)
}

func TestInsertOrUpdateSequentialVersions(t *testing.T) {
	tbl := New()

	h, err := tbl.InsertOrUpdate("k1", 0, tstypes.Header{Size: 1})
	require.NoError(t, err)

	h, err = tbl.InsertOrUpdate("k1", h.Version, tstypes.Header{Size: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), h.Version)

	looked, ok := tbl.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), looked.Size)
}

func TestInsertOrUpdateStaleVersionFails(t *testing.T) {
	tbl := New()

	h, err := tbl.InsertOrUpdate("k1", 0, tstypes.Header{Size: 1})
	require.NoError(t, err)

	_, err = tbl.InsertOrUpdate("k1", h.Version, tstypes.Header{Size: 2})
	require.NoError(t, err)

	// h.Version is now stale.
	_, err = tbl.InsertOrUpdate("k1", h.Version, tstypes.Header{Size: 3})
	assert.ErrorIs(t, err, tserr.CASFailed)
}

func TestLookupUnknownKey(t *testing.T) {
	tbl := New()
	_, ok := tbl.Lookup("missing")
	assert.False(t, ok)
}

func TestRemoveRequiresCurrentVersion(t *testing.T) {
	tbl := New()

	h, err := tbl.InsertOrUpdate("k1", 0, tstypes.Header{Size: 1})
	require.NoError(t, err)

	assert.ErrorIs(t, tbl.Remove("k1", h.Version+1), tserr.CASFailed)
	assert.NoError(t, tbl.Remove("k1", h.Version))

	_, ok := tbl.Lookup("k1")
	assert.False(t, ok)
}

func TestRemoveUnknownKey(t *testing.T) {
	tbl := New()
	assert.ErrorIs(t, tbl.Remove("missing", 0), tserr.NotFound)
}

func TestRangeVisitsAllEntries(t *testing.T) {
	tbl := New()
	for _, k := range []string{"a", "b", "c"} {
		_, err := tbl.InsertOrUpdate(k, 0, tstypes.Header{Size: 1})
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	tbl.Range(func(h tstypes.Header) { seen[h.Key] = true })

	assert.Len(t, seen, 3)
	assert.True(t, seen["a"] && seen["b"] && seen["c"])
}

func TestConcurrentInsertOrUpdateOnlyOneWinnerPerVersion(t *testing.T) {
	tbl := New()
	_, err := tbl.InsertOrUpdate("k1", 0, tstypes.Header{Size: 0})
	require.NoError(t, err)

	const attempts = 50
	var wg sync.WaitGroup
	successes := make([]bool, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tbl.InsertOrUpdate("k1", 1, tstypes.Header{Size: uint64(i)})
			successes[i] = err == nil
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, ok := range successes {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one writer should win the race against version 1")

	final, ok := tbl.Lookup("k1")
	require.True(t, ok)
	assert.Equal(t, uint64(2), final.Version)
}

func TestLenCountsAllTrackedKeys(t *testing.T) {
	tbl := New()
	assert.Equal(t, 0, tbl.Len())

	_, err := tbl.InsertOrUpdate("k1", 0, tstypes.Header{})
	require.NoError(t, err)
	_, err = tbl.InsertOrUpdate("k2", 0, tstypes.Header{})
	require.NoError(t, err)

	assert.Equal(t, 2, tbl.Len())
}
