package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/tierstore/pkg/accountant"
	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/health"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/manifest"
	"github.com/cuemby/tierstore/pkg/metrics"
	"github.com/cuemby/tierstore/pkg/migration"
	"github.com/cuemby/tierstore/pkg/placement"
	"github.com/cuemby/tierstore/pkg/policy"
	"github.com/cuemby/tierstore/pkg/reconciler"
	"github.com/cuemby/tierstore/pkg/replacement"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Store is the tier store's public entry point. It owns one instance
// of every subsystem and exposes the Put/Get/Delete/Pin/Unpin/Flush/
// AdminMigrate/Stats/SnapshotPolicy/UpdatePolicy API.
type Store struct {
	table         *placement.Table
	accountant    *accountant.Accountant
	indices       map[tstypes.Tier]*replacement.Index
	backends      map[tstypes.Tier]storage.Backend
	tierOrder     []tstypes.Tier
	watermarkHigh map[tstypes.Tier]float64

	engine     *migration.Engine
	evaluator  *policy.Evaluator
	manifest   *manifest.Manifest
	reconciler *reconciler.Reconciler
	monitors   []*health.Monitor
	broker     *events.Broker

	retries RetryConfig

	collectStop chan struct{}
	closeOnce   sync.Once
}

// New constructs a Store, recovering prior state from the manifest and
// optionally running one reconciliation pass before returning, per
// cfg.Startup.ReconcileOnBoot. Call Start to begin the background
// worker pool, policy sweeps, reconciliation loop and health monitors.
func New(cfg Config) (*Store, error) {
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("coordinator: at least one tier is required")
	}

	capacities := make(map[tstypes.Tier]uint64, len(cfg.Tiers))
	backends := make(map[tstypes.Tier]storage.Backend, len(cfg.Tiers))
	indices := make(map[tstypes.Tier]*replacement.Index, len(cfg.Tiers))
	tierOrder := make([]tstypes.Tier, 0, len(cfg.Tiers))
	watermarkHigh := make(map[tstypes.Tier]float64, len(cfg.Tiers))
	healthCheckers := make(map[tstypes.Tier]health.Checker, len(cfg.Tiers))

	for _, tc := range cfg.Tiers {
		capacities[tc.Tier] = tc.CapacityBytes
		backends[tc.Tier] = tc.Backend
		indices[tc.Tier] = replacement.New(tc.ReplacementPolicy)
		tierOrder = append(tierOrder, tc.Tier)
		if tc.WatermarkHigh > 0 {
			watermarkHigh[tc.Tier] = tc.WatermarkHigh
		}
		healthCheckers[tc.Tier] = tc.HealthChecker
	}

	table := placement.New()
	acc := accountant.New(capacities)
	broker := events.NewBroker()

	m, err := manifest.Open(cfg.ManifestDir)
	if err != nil {
		metrics.RegisterComponent("manifest", false, err.Error())
		return nil, fmt.Errorf("open manifest: %w", err)
	}

	headers, err := m.Recover()
	if err != nil {
		metrics.RegisterComponent("manifest", false, err.Error())
		return nil, fmt.Errorf("recover manifest: %w", err)
	}
	table.LoadSnapshot(headers)
	for _, h := range headers {
		if h.State == tstypes.StateTombstone {
			continue
		}
		if _, err := acc.Reserve(h.Tier, h.Size); err == nil {
			acc.Commit(h.Tier, h.Size)
		}
		if idx := indices[h.Tier]; idx != nil {
			idx.Touch(h.Key)
		}
	}
	metrics.RegisterComponent("manifest", true, fmt.Sprintf("recovered %d keys", len(headers)))

	engine := migration.NewEngine(migration.Config{
		Table:      table,
		Accountant: acc,
		Backends:   backends,
		Indices:    indices,
		Manifest:   m,
		Workers:    cfg.MigrationWorkers,
		QueueDepth: cfg.MigrationQueueDepth,
	})

	evaluator := policy.New(policy.Config{
		Table:             table,
		Engine:            engine,
		Accountant:        acc,
		Indices:           indices,
		TierOrder:         tierOrder,
		Interval:          cfg.PolicyInterval,
		Rules:             cfg.PolicyRules,
		RetainTags:        cfg.PolicyRetainTags,
		PinFixedTier:      cfg.PolicyPinFixedTier,
		EvictionWatermark: cfg.EvictionWatermark,
	})

	rec := reconciler.New(reconciler.Config{
		Table:    table,
		Backends: backends,
		Broker:   broker,
		Interval: cfg.ReconcilerInterval,
	})

	healthCfg := cfg.HealthCheck
	if healthCfg.Interval <= 0 {
		healthCfg = health.DefaultConfig()
	}
	monitors := make([]*health.Monitor, 0, len(backends))
	for tier, backend := range backends {
		checker := healthCheckers[tier]
		if checker == nil {
			checker = health.NewBackendChecker(backend)
		}
		monitors = append(monitors, health.NewMonitor(tier.String(), backend.Kind(), checker, healthCfg, broker))
	}
	metrics.RegisterComponent("backends", true, "")

	retries := cfg.Retries
	if retries.MaxAttempts <= 0 {
		retries = defaultRetryConfig()
	}

	s := &Store{
		table:         table,
		accountant:    acc,
		indices:       indices,
		backends:      backends,
		tierOrder:     tierOrder,
		watermarkHigh: watermarkHigh,
		engine:        engine,
		evaluator:     evaluator,
		manifest:      m,
		reconciler:    rec,
		monitors:      monitors,
		broker:        broker,
		retries:       retries,
		collectStop:   make(chan struct{}),
	}

	if cfg.Startup.ReconcileOnBoot {
		rec.Reconcile()
	}

	return s, nil
}

// Start launches the migration worker pool, the policy evaluator, the
// reconciler loop, the per-backend health monitors and the metrics
// collector goroutine.
func (s *Store) Start() {
	s.broker.Start()
	s.engine.Start()
	s.evaluator.Start()
	s.reconciler.Start()
	for _, mon := range s.monitors {
		mon.Start()
	}
	go s.watchBackendHealth()
	go s.collectMetrics()
	log.WithComponent("coordinator").Info().Int("tiers", len(s.tierOrder)).Msg("coordinator started")
}

// Shutdown stops every background loop and checkpoints the placement
// table to the manifest so the next New call recovers from a small WAL
// tail rather than replaying the whole key space.
func (s *Store) Shutdown() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.collectStop)
		for _, mon := range s.monitors {
			mon.Stop()
		}
		s.reconciler.Stop()
		s.evaluator.Stop()
		s.engine.Stop()
		s.broker.Stop()

		var headers []tstypes.Header
		s.table.Range(func(h tstypes.Header) {
			headers = append(headers, h)
		})
		if cpErr := s.manifest.Checkpoint(headers); cpErr != nil {
			err = fmt.Errorf("checkpoint manifest: %w", cpErr)
		}
		if closeErr := s.manifest.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close manifest: %w", closeErr)
		}
	})
	return err
}

// Subscribe returns a channel of store events (puts, deletes, pins,
// unpins, corruption, reverted interrupted migrations, backend
// liveness transitions).
func (s *Store) Subscribe() events.Subscriber {
	return s.broker.Subscribe()
}

func (s *Store) watchBackendHealth() {
	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			switch evt.Type {
			case events.EventBackendUnavail:
				metrics.RegisterComponent("backends", false, evt.Message)
			case events.EventBackendRecovered:
				if s.allBackendsHealthy() {
					metrics.RegisterComponent("backends", true, "")
				}
			}
		case <-s.collectStop:
			return
		}
	}
}

func (s *Store) allBackendsHealthy() bool {
	for _, mon := range s.monitors {
		if !mon.Status().Healthy {
			return false
		}
	}
	return true
}

func (s *Store) collectMetrics() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.observeKeysResident()
		case <-s.collectStop:
			return
		}
	}
}

func (s *Store) observeKeysResident() {
	counts := make(map[tstypes.Tier]int, len(s.tierOrder))
	s.table.Range(func(h tstypes.Header) {
		if h.State != tstypes.StateTombstone {
			counts[h.Tier]++
		}
	})
	for _, tier := range s.tierOrder {
		metrics.KeysResident.WithLabelValues(tier.String()).Set(float64(counts[tier]))
	}
}

// trackRequest records the coordinator-request counter and duration
// histogram for operation once the caller's named error return is
// final. Call as `defer s.trackRequest("put", metrics.NewTimer(), &err)`
// with a named return named err.
func (s *Store) trackRequest(operation string, timer *metrics.Timer, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = "error"
	}
	metrics.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	timer.ObserveDurationVec(metrics.RequestDuration, operation)
}

func (s *Store) tierIndex(tier tstypes.Tier) int {
	for i, t := range s.tierOrder {
		if t == tier {
			return i
		}
	}
	return -1
}

// nextTier returns the tier immediately colder than tier in tierOrder.
func (s *Store) nextTier(tier tstypes.Tier) (tstypes.Tier, bool) {
	i := s.tierIndex(tier)
	if i < 0 || i+1 >= len(s.tierOrder) {
		return 0, false
	}
	return s.tierOrder[i+1], true
}

// nearestDurableTier returns the first durable tier at or below tier in
// tierOrder.
func (s *Store) nearestDurableTier(tier tstypes.Tier) (tstypes.Tier, bool) {
	i := s.tierIndex(tier)
	if i < 0 {
		return 0, false
	}
	for ; i < len(s.tierOrder); i++ {
		t := s.tierOrder[i]
		if b, ok := s.backends[t]; ok && b.DurabilityClass() == tstypes.Durable {
			return t, true
		}
	}
	return 0, false
}
