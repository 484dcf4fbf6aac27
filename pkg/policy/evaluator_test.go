package policy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tierstore/pkg/accountant"
	"github.com/cuemby/tierstore/pkg/migration"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/replacement"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

func newTestHarness(t *testing.T) (*placement.Table, *accountant.Accountant, *migration.Engine, map[tstypes.Tier]storage.Backend) {
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
	engine := migration.NewEngine(migration.Config{
		Table: table, Accountant: acct, Backends: backends, Indices: indices, Workers: 2, QueueDepth: 16,
	})
	engine.Start()
	t.Cleanup(engine.Stop)

	return table, acct, engine, backends
}

func putHeader(t *testing.T, table *placement.Table, acct *accountant.Accountant, backends map[tstypes.Tier]storage.Backend, key string, tier tstypes.Tier, createdAt time.Time, accessCount uint32, tags map[string]string) {
	t.Helper()
	_, err := acct.Reserve(tier, 1)
	require.NoError(t, err)
	handle, sum, err := backends[tier].Put(context.Background(), []byte("x"))
	require.NoError(t, err)
	acct.Commit(tier, 1)

	_, err = table.InsertOrUpdate(key, 0, tstypes.Header{
		Key: key, Size: 1, Tier: tier, State: tstypes.StateResident, Handle: handle, Checksum: sum,
		CreatedAt: createdAt, AccessCount: accessCount, UserTags: tags,
	})
	require.NoError(t, err)
}

func TestAgeThresholdRuleDemotes(t *testing.T) {
	table, acct, engine, backends := newTestHarness(t)

	putHeader(t, table, acct, backends, "old", tstypes.Hot, time.Now().Add(-time.Hour), 0, nil)

	eval := New(Config{
		Table: table, Engine: engine, Accountant: acct,
		TierOrder: []tstypes.Tier{tstypes.Hot, tstypes.Warm},
		Rules: []Rule{
			{Name: "age", Kind: RuleAgeThreshold, FromTier: tstypes.Hot, ToTier: tstypes.Warm, Reason: tstypes.ReasonAgeThreshold, AgeThreshold: time.Minute},
		},
	})
	eval.Evaluate()

	require.Eventually(t, func() bool {
		h, ok := table.Lookup("old")
		return ok && h.Tier == tstypes.Warm
	}, time.Second, 10*time.Millisecond)
}

func TestPromoteOnAccessCountRulePromotes(t *testing.T) {
	table, acct, engine, backends := newTestHarness(t)
	putHeader(t, table, acct, backends, "hot-key", tstypes.Warm, time.Now(), 100, nil)

	eval := New(Config{
		Table: table, Engine: engine, Accountant: acct,
		TierOrder: []tstypes.Tier{tstypes.Hot, tstypes.Warm},
		Rules: []Rule{
			{Name: "promote", Kind: RulePromoteOnAccessCount, FromTier: tstypes.Warm, ToTier: tstypes.Hot, Reason: tstypes.ReasonPromoteOnAccess, CountThreshold: 10},
		},
	})
	eval.Evaluate()

	require.Eventually(t, func() bool {
		h, ok := table.Lookup("hot-key")
		return ok && h.Tier == tstypes.Hot
	}, time.Second, 10*time.Millisecond)
}

func TestRetainTagsExemptFromDemotion(t *testing.T) {
	table, acct, engine, backends := newTestHarness(t)
	putHeader(t, table, acct, backends, "keep-hot", tstypes.Hot, time.Now().Add(-time.Hour), 0, map[string]string{"important": "yes"})

	eval := New(Config{
		Table: table, Engine: engine, Accountant: acct,
		TierOrder:  []tstypes.Tier{tstypes.Hot, tstypes.Warm},
		RetainTags: map[string]string{"important": "yes"},
		Rules: []Rule{
			{Name: "age", Kind: RuleAgeThreshold, FromTier: tstypes.Hot, ToTier: tstypes.Warm, Reason: tstypes.ReasonAgeThreshold, AgeThreshold: time.Minute},
		},
	})
	eval.Evaluate()

	time.Sleep(50 * time.Millisecond)
	h, ok := table.Lookup("keep-hot")
	require.True(t, ok)
	assert.Equal(t, tstypes.Hot, h.Tier, "retained key must not be demoted")
}

func TestPinFixedTierOverridesEverything(t *testing.T) {
	table, acct, engine, backends := newTestHarness(t)
	putHeader(t, table, acct, backends, "forced", tstypes.Hot, time.Now(), 0, map[string]string{"archive": "true"})

	eval := New(Config{
		Table: table, Engine: engine, Accountant: acct,
		TierOrder:    []tstypes.Tier{tstypes.Hot, tstypes.Warm},
		PinFixedTier: map[string]tstypes.Tier{"archive": tstypes.Warm},
	})
	eval.Evaluate()

	require.Eventually(t, func() bool {
		h, ok := table.Lookup("forced")
		return ok && h.Tier == tstypes.Warm
	}, time.Second, 10*time.Millisecond)
}

func TestPinnedHeaderNeverEvaluated(t *testing.T) {
	table, acct, engine, _ := newTestHarness(t)
	_, err := acct.Reserve(tstypes.Hot, 1)
	require.NoError(t, err)
	acct.Commit(tstypes.Hot, 1)
	_, err = table.InsertOrUpdate("pinned", 0, tstypes.Header{
		Key: "pinned", Size: 1, Tier: tstypes.Hot, State: tstypes.StateResident,
		CreatedAt: time.Now().Add(-time.Hour), Pinned: true,
	})
	require.NoError(t, err)

	eval := New(Config{
		Table: table, Engine: engine, Accountant: acct,
		TierOrder: []tstypes.Tier{tstypes.Hot, tstypes.Warm},
		Rules: []Rule{
			{Name: "age", Kind: RuleAgeThreshold, FromTier: tstypes.Hot, ToTier: tstypes.Warm, Reason: tstypes.ReasonAgeThreshold, AgeThreshold: time.Minute},
		},
	})
	eval.Evaluate()

	time.Sleep(50 * time.Millisecond)
	h, ok := table.Lookup("pinned")
	require.True(t, ok)
	assert.Equal(t, tstypes.Hot, h.Tier)
}

func TestEvictionDemandDemotesUnderPressure(t *testing.T) {
	table := placement.New()
	acct := accountant.New(map[tstypes.Tier]uint64{tstypes.Hot: 10, tstypes.Warm: 100})
	backends := map[tstypes.Tier]storage.Backend{tstypes.Hot: storage.NewHeapBackend(), tstypes.Warm: storage.NewHeapBackend()}
	indices := map[tstypes.Tier]*replacement.Index{tstypes.Hot: replacement.New(tstypes.PolicyLRU), tstypes.Warm: replacement.New(tstypes.PolicyLRU)}
	engine := migration.NewEngine(migration.Config{Table: table, Accountant: acct, Backends: backends, Indices: indices, Workers: 2, QueueDepth: 16})
	engine.Start()
	defer engine.Stop()

	ctx := context.Background()
	_, err := acct.Reserve(tstypes.Hot, 9)
	require.NoError(t, err)
	handle, sum, err := backends[tstypes.Hot].Put(ctx, []byte("123456789"))
	require.NoError(t, err)
	acct.Commit(tstypes.Hot, 9)
	_, err = table.InsertOrUpdate("pressured", 0, tstypes.Header{
		Key: "pressured", Size: 9, Tier: tstypes.Hot, State: tstypes.StateResident, Handle: handle, Checksum: sum,
	})
	require.NoError(t, err)
	indices[tstypes.Hot].Touch("pressured")

	eval := New(Config{
		Table: table, Engine: engine, Accountant: acct, Indices: indices,
		TierOrder: []tstypes.Tier{tstypes.Hot, tstypes.Warm}, EvictionWatermark: 0.5,
	})
	eval.Evaluate()

	require.Eventually(t, func() bool {
		h, ok := table.Lookup("pressured")
		return ok && h.Tier == tstypes.Warm
	}, time.Second, 10*time.Millisecond)
}
