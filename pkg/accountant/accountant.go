package accountant

import (
	"sync"

	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/tserr"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// budget tracks one tier's capacity ledger. reserved is bytes staked
// by an in-flight Put/migration that has not yet committed; committed
// is bytes backing a resident Header.
type budget struct {
	mu        sync.Mutex
	capacity  uint64
	reserved  uint64
	committed uint64
}

func (b *budget) free() uint64 {
	used := b.reserved + b.committed
	if used >= b.capacity {
		return 0
	}
	return b.capacity - used
}

// Accountant tracks capacity per tier.
type Accountant struct {
	budgets map[tstypes.Tier]*budget
}

// New returns an Accountant with the given per-tier capacities in
// bytes. Tiers absent from capacities have zero capacity: every
// Reserve against them fails with tserr.NoCapacity.
func New(capacities map[tstypes.Tier]uint64) *Accountant {
	a := &Accountant{budgets: make(map[tstypes.Tier]*budget, len(capacities))}
	for tier, capBytes := range capacities {
		a.budgets[tier] = &budget{capacity: capBytes}
		metrics.TierCapacityBytes.WithLabelValues(tier.String()).Set(float64(capBytes))
	}
	return a
}

func (a *Accountant) budgetFor(tier tstypes.Tier) *budget {
	b, ok := a.budgets[tier]
	if !ok {
		b = &budget{}
		a.budgets[tier] = b
	}
	return b
}

// Reserve stakes size bytes against tier's budget. It returns
// tserr.NoCapacity, and the number of bytes the caller would need to
// evict to make the reservation fit, if the tier's free space is
// insufficient.
func (a *Accountant) Reserve(tier tstypes.Tier, size uint64) (deficit uint64, err error) {
	b := a.budgetFor(tier)

	b.mu.Lock()
	defer b.mu.Unlock()

	if free := b.free(); free < size {
		return size - free, tserr.NoCapacity
	}
	b.reserved += size
	a.observeLocked(tier, b)
	return 0, nil
}

// Commit converts a previously reserved claim into committed,
// resident capacity. Callers call this after a backend Put succeeds.
func (a *Accountant) Commit(tier tstypes.Tier, size uint64) {
	b := a.budgetFor(tier)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reserved >= size {
		b.reserved -= size
	} else {
		b.reserved = 0
	}
	b.committed += size
	a.observeLocked(tier, b)
}

// Release gives back a reservation that never committed, because the
// backend Put failed or the caller abandoned the operation.
func (a *Accountant) Release(tier tstypes.Tier, size uint64) {
	b := a.budgetFor(tier)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reserved >= size {
		b.reserved -= size
	} else {
		b.reserved = 0
	}
	a.observeLocked(tier, b)
}

// Free reduces committed usage when a resident key is deleted or
// migrated away from tier.
func (a *Accountant) Free(tier tstypes.Tier, size uint64) {
	b := a.budgetFor(tier)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.committed >= size {
		b.committed -= size
	} else {
		b.committed = 0
	}
	a.observeLocked(tier, b)
}

// Stats reports tier's capacity, reserved and committed bytes.
func (a *Accountant) Stats(tier tstypes.Tier) (capacity, reserved, committed uint64) {
	b := a.budgetFor(tier)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity, b.reserved, b.committed
}

// Watermark returns the occupancy ratio (reserved+committed)/capacity
// for tier, used by the policy evaluator's eviction_demand trigger.
func (a *Accountant) Watermark(tier tstypes.Tier) float64 {
	b := a.budgetFor(tier)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity == 0 {
		return 1
	}
	return float64(b.reserved+b.committed) / float64(b.capacity)
}

// observeLocked publishes the tier's current gauges. Callers must
// hold b.mu.
func (a *Accountant) observeLocked(tier tstypes.Tier, b *budget) {
	metrics.BytesResident.WithLabelValues(tier.String()).Set(float64(b.committed))
	if b.capacity == 0 {
		metrics.TierWatermark.WithLabelValues(tier.String()).Set(1)
		return
	}
	metrics.TierWatermark.WithLabelValues(tier.String()).Set(float64(b.reserved+b.committed) / float64(b.capacity))
}
