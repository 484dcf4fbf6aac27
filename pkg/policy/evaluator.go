package policy

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tierstore/pkg/accountant"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/migration"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/replacement"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// RuleKind names the trigger a Rule evaluates.
type RuleKind string

const (
	RuleAgeThreshold         RuleKind = "age_threshold"
	RuleAccessFrequencyBelow RuleKind = "access_frequency_below"
	RulePromoteOnAccessCount RuleKind = "promote_on_access_count"
)

// Rule is one declarative policy rule.
type Rule struct {
	Name string
	Kind RuleKind

	FromTier tstypes.Tier
	ToTier   tstypes.Tier
	Reason   tstypes.MigrationReason

	// AgeThreshold is used by RuleAgeThreshold.
	AgeThreshold time.Duration
	// CountThreshold is used by RuleAccessFrequencyBelow (access count
	// below this over the record's lifetime) and
	// RulePromoteOnAccessCount (access count at or above this).
	CountThreshold uint32
}

// isDemotion reports whether matching this rule moves a key to a
// slower, not faster, tier.
func (r Rule) isDemotion() bool { return r.FromTier.Below(r.ToTier) }

func (r Rule) matches(h tstypes.Header) bool {
	if h.Tier != r.FromTier {
		return false
	}
	switch r.Kind {
	case RuleAgeThreshold:
		return time.Since(h.CreatedAt) >= r.AgeThreshold
	case RuleAccessFrequencyBelow:
		return h.AccessCount < r.CountThreshold
	case RulePromoteOnAccessCount:
		return h.AccessCount >= r.CountThreshold
	default:
		return false
	}
}

// Config wires an Evaluator to the rest of the store.
type Config struct {
	Table      *placement.Table
	Engine     *migration.Engine
	Accountant *accountant.Accountant
	Indices    map[tstypes.Tier]*replacement.Index

	// TierOrder lists tiers from hottest to coldest; it is used to
	// find "the next tier down" for eviction_demand jobs.
	TierOrder []tstypes.Tier

	Interval          time.Duration
	Rules             []Rule
	RetainTags        map[string]string
	PinFixedTier      map[string]tstypes.Tier
	EvictionWatermark float64
}

// Evaluator runs the ticker-driven policy sweep.
type Evaluator struct {
	table      *placement.Table
	engine     *migration.Engine
	accountant *accountant.Accountant
	indices    map[tstypes.Tier]*replacement.Index
	tierOrder  []tstypes.Tier

	interval          time.Duration
	evictionWatermark float64

	mu           sync.RWMutex
	rules        []Rule
	retainTags   map[string]string
	pinFixedTier map[string]tstypes.Tier

	logger zerolog.Logger
	stopCh chan struct{}
}

// New constructs an Evaluator. Call Start to begin the sweep loop.
func New(cfg Config) *Evaluator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	watermark := cfg.EvictionWatermark
	if watermark <= 0 {
		watermark = 0.9
	}

	return &Evaluator{
		table:             cfg.Table,
		engine:            cfg.Engine,
		accountant:        cfg.Accountant,
		indices:           cfg.Indices,
		tierOrder:         cfg.TierOrder,
		interval:          interval,
		evictionWatermark: watermark,
		rules:             cfg.Rules,
		retainTags:        cfg.RetainTags,
		pinFixedTier:      cfg.PinFixedTier,
		logger:            log.WithComponent("policy"),
		stopCh:            make(chan struct{}),
	}
}

// Start begins the evaluator loop.
func (e *Evaluator) Start() {
	go e.run()
}

// Stop stops the evaluator loop.
func (e *Evaluator) Stop() {
	close(e.stopCh)
}

func (e *Evaluator) run() {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Evaluate()
		case <-e.stopCh:
			return
		}
	}
}

// UpdateRules atomically replaces the rule set (coordinator's
// update_policy operation).
func (e *Evaluator) UpdateRules(rules []Rule, retainTags map[string]string, pinFixedTier map[string]tstypes.Tier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.retainTags = retainTags
	e.pinFixedTier = pinFixedTier
}

// SnapshotRules returns the currently active rule set (coordinator's
// snapshot_policy operation).
func (e *Evaluator) SnapshotRules() ([]Rule, map[string]string, map[string]tstypes.Tier) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	retain := make(map[string]string, len(e.retainTags))
	for k, v := range e.retainTags {
		retain[k] = v
	}
	pin := make(map[string]tstypes.Tier, len(e.pinFixedTier))
	for k, v := range e.pinFixedTier {
		pin[k] = v
	}
	return rules, retain, pin
}

// Evaluate runs one full sweep: rule matching over every resident key,
// followed by a watermark-driven eviction_demand pass.
func (e *Evaluator) Evaluate() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.PolicyEvaluationDuration)
		metrics.PolicyEvaluationCyclesTotal.Inc()
	}()

	e.mu.RLock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	retainTags := e.retainTags
	pinFixedTier := e.pinFixedTier
	e.mu.RUnlock()

	e.table.Range(func(h tstypes.Header) {
		if h.State != tstypes.StateResident || h.Pinned {
			return
		}
		e.evaluateKey(h, rules, retainTags, pinFixedTier)
	})

	e.evaluateEvictionDemand()
}

func (e *Evaluator) evaluateKey(h tstypes.Header, rules []Rule, retainTags map[string]string, pinFixedTier map[string]tstypes.Tier) {
	if tier, ok := e.matchPinFixedTier(h, pinFixedTier); ok {
		if tier != h.Tier {
			e.enqueue(h, tier, tstypes.ReasonAdmin, "pin_fixed_tier")
		}
		return
	}

	retained := hasAnyTag(h, retainTags)

	for _, r := range rules {
		if retained && r.isDemotion() {
			continue
		}
		if r.matches(h) {
			e.enqueue(h, r.ToTier, r.Reason, r.Name)
			return
		}
	}
}

func (e *Evaluator) matchPinFixedTier(h tstypes.Header, pinFixedTier map[string]tstypes.Tier) (tstypes.Tier, bool) {
	for tag, tier := range pinFixedTier {
		if _, ok := h.UserTags[tag]; ok {
			return tier, true
		}
	}
	return 0, false
}

func hasAnyTag(h tstypes.Header, tags map[string]string) bool {
	for k, v := range tags {
		if have, ok := h.UserTags[k]; ok && have == v {
			return true
		}
	}
	return false
}

func (e *Evaluator) enqueue(h tstypes.Header, toTier tstypes.Tier, reason tstypes.MigrationReason, ruleName string) {
	ok := e.engine.Enqueue(tstypes.MigrationJob{
		Key:        h.Key,
		FromTier:   h.Tier,
		ToTier:     toTier,
		Reason:     reason,
		EnqueuedAt: time.Now(),
	})
	if ok {
		metrics.PolicyJobsEnqueuedTotal.WithLabelValues(ruleName).Inc()
	}
}

// evaluateEvictionDemand enqueues a demotion for the current
// replacement-index victim of any tier whose occupancy is at or above
// the configured watermark.
func (e *Evaluator) evaluateEvictionDemand() {
	for i, tier := range e.tierOrder {
		if i == len(e.tierOrder)-1 {
			break // last tier has nowhere colder to demote to
		}
		if e.accountant.Watermark(tier) < e.evictionWatermark {
			continue
		}

		idx := e.indices[tier]
		if idx == nil {
			continue
		}
		key, ok := idx.VictimExcept(func(k string) bool {
			h, ok := e.table.Lookup(k)
			return !ok || h.Pinned || h.Refcount > 0
		})
		if !ok {
			continue
		}

		h, ok := e.table.Lookup(key)
		if !ok || h.Pinned || h.Tier != tier {
			continue
		}

		nextTier := e.tierOrder[i+1]
		e.enqueue(h, nextTier, tstypes.ReasonEvictionDemand, "eviction_demand")
	}
}
