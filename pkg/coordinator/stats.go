package coordinator

import (
	"github.com/cuemby/tierstore/pkg/policy"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// TierStats reports one tier's capacity and occupancy.
type TierStats struct {
	Tier      tstypes.Tier
	Capacity  uint64
	Reserved  uint64
	Committed uint64
	Watermark float64
	Keys      int
}

// Stats reports the store's current capacity and queue occupancy.
type Stats struct {
	Tiers               []TierStats
	MigrationQueueDepth int
}

// Stats returns a point-in-time snapshot of per-tier capacity and
// queue depth.
func (s *Store) Stats() Stats {
	out := Stats{MigrationQueueDepth: s.engine.QueueDepth()}
	for _, tier := range s.tierOrder {
		capacity, reserved, committed := s.accountant.Stats(tier)
		keys := 0
		if idx := s.indices[tier]; idx != nil {
			keys = idx.Len()
		}
		out.Tiers = append(out.Tiers, TierStats{
			Tier:      tier,
			Capacity:  capacity,
			Reserved:  reserved,
			Committed: committed,
			Watermark: s.accountant.Watermark(tier),
			Keys:      keys,
		})
	}
	return out
}

// SnapshotPolicy returns the currently active policy rule set.
func (s *Store) SnapshotPolicy() ([]policy.Rule, map[string]string, map[string]tstypes.Tier) {
	return s.evaluator.SnapshotRules()
}

// UpdatePolicy atomically replaces the active policy rule set.
func (s *Store) UpdatePolicy(rules []policy.Rule, retainTags map[string]string, pinFixedTier map[string]tstypes.Tier) {
	s.evaluator.UpdateRules(rules, retainTags, pinFixedTier)
}
