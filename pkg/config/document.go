// Package config parses the on-disk YAML document that describes a
// tier store deployment: its tiers and their backends, the policy rule
// set, worker pool sizing, retry budgets and startup behavior.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/tierstore/pkg/coordinator"
	"github.com/cuemby/tierstore/pkg/health"
	"github.com/cuemby/tierstore/pkg/policy"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// Document is the top-level shape of a tier store config file.
type Document struct {
	ManifestDir string     `yaml:"manifest_dir"`
	Tiers       []TierDoc  `yaml:"tiers"`
	Policy      PolicyDoc  `yaml:"policy"`
	Workers     WorkersDoc `yaml:"workers"`
	Retries     RetriesDoc `yaml:"retries"`
	Startup     StartupDoc `yaml:"startup"`
	Health      HealthDoc  `yaml:"health"`
}

// TierDoc describes one tier, hottest-to-coldest order matching the
// document's tiers list order.
type TierDoc struct {
	Tier          string         `yaml:"tier"`
	Backend       string         `yaml:"backend"` // "heap", "bolt", or "remote"
	Path          string         `yaml:"path"`     // required for "bolt"
	URL           string         `yaml:"url"`      // required for "remote"
	CapacityBytes uint64         `yaml:"capacity_bytes"`
	Replacement   string         `yaml:"replacement"` // "lru", "lfu", "arc"
	WatermarkLow  float64        `yaml:"watermark_low"`
	WatermarkHigh float64        `yaml:"watermark_high"`
	HealthCheck   HealthProbeDoc `yaml:"health_check"`
}

// HealthProbeDoc overrides the liveness probe for one tier's backend.
// Left zero-valued, a "remote" backend is probed over HTTP against its
// own HealthURL and every other backend falls back to
// health.NewBackendChecker (probing liveness via the backend's Flush).
type HealthProbeDoc struct {
	Kind    string   `yaml:"kind"`    // "http", "tcp", or "exec"
	Target  string   `yaml:"target"`  // URL for "http", "host:port" for "tcp"
	Command []string `yaml:"command"` // argv for "exec"
}

// RuleDoc describes one declarative policy rule.
type RuleDoc struct {
	Name           string        `yaml:"name"`
	Kind           string        `yaml:"kind"`
	FromTier       string        `yaml:"from_tier"`
	ToTier         string        `yaml:"to_tier"`
	AgeThreshold   time.Duration `yaml:"age_threshold"`
	CountThreshold uint32        `yaml:"count_threshold"`
}

// PolicyDoc configures the policy evaluator.
type PolicyDoc struct {
	Interval          time.Duration     `yaml:"interval"`
	Rules             []RuleDoc         `yaml:"rules"`
	RetainTags        map[string]string `yaml:"retain_tags"`
	PinFixedTier      map[string]string `yaml:"pin_fixed_tier"`
	EvictionWatermark float64           `yaml:"eviction_watermark"`
}

// WorkersDoc sizes the migration worker pool.
type WorkersDoc struct {
	MigrationWorkers    int `yaml:"migration_workers"`
	MigrationQueueDepth int `yaml:"migration_queue_depth"`
}

// RetriesDoc bounds backend-operation retries.
type RetriesDoc struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// StartupDoc controls recovery behavior.
type StartupDoc struct {
	ReconcileOnBoot            bool          `yaml:"reconcile_on_boot"`
	AbortInterruptedMigrations string        `yaml:"abort_interrupted_migrations"` // "prefer_source" or "prefer_target"
	ReconcilerInterval         time.Duration `yaml:"reconciler_interval"`
}

// HealthDoc configures backend liveness probing.
type HealthDoc struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Retries     int           `yaml:"retries"`
	StartPeriod time.Duration `yaml:"start_period"`
}

// Load reads and parses a Document from path.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return doc, nil
}

// Build translates a Document into a coordinator.Config, opening every
// backend named by its tiers. Backends are opened in document order;
// the caller owns closing any that must be closed
// (coordinator.Store.Shutdown does not close backend handles, so
// closing each returned BoltBackend is the caller's responsibility on
// process exit).
func (d Document) Build() (coordinator.Config, []*storage.BoltBackend, error) {
	var opened []*storage.BoltBackend
	cfg := coordinator.Config{
		ManifestDir:         d.ManifestDir,
		PolicyInterval:      d.Policy.Interval,
		PolicyRetainTags:    d.Policy.RetainTags,
		EvictionWatermark:   d.Policy.EvictionWatermark,
		MigrationWorkers:    d.Workers.MigrationWorkers,
		MigrationQueueDepth: d.Workers.MigrationQueueDepth,
		ReconcilerInterval:  d.Startup.ReconcilerInterval,
		Retries: coordinator.RetryConfig{
			MaxAttempts: d.Retries.MaxAttempts,
			BaseBackoff: d.Retries.BaseBackoff,
			MaxBackoff:  d.Retries.MaxBackoff,
		},
		Startup: coordinator.StartupConfig{
			ReconcileOnBoot:            d.Startup.ReconcileOnBoot,
			AbortInterruptedMigrations: parseAbortPreference(d.Startup.AbortInterruptedMigrations),
		},
		HealthCheck: health.Config{
			Interval:    d.Health.Interval,
			Timeout:     d.Health.Timeout,
			Retries:     d.Health.Retries,
			StartPeriod: d.Health.StartPeriod,
		},
	}

	for _, td := range d.Tiers {
		tier, err := parseTier(td.Tier)
		if err != nil {
			return coordinator.Config{}, opened, err
		}
		backend, err := buildBackend(td)
		if err != nil {
			return coordinator.Config{}, opened, err
		}
		if b, ok := backend.(*storage.BoltBackend); ok {
			opened = append(opened, b)
		}
		checker, err := buildHealthChecker(td, backend)
		if err != nil {
			return coordinator.Config{}, opened, err
		}
		cfg.Tiers = append(cfg.Tiers, coordinator.TierConfig{
			Tier:              tier,
			Backend:           backend,
			CapacityBytes:     td.CapacityBytes,
			ReplacementPolicy: parseReplacement(td.Replacement),
			WatermarkLow:      td.WatermarkLow,
			WatermarkHigh:     td.WatermarkHigh,
			HealthChecker:     checker,
		})
	}

	if d.Policy.PinFixedTier != nil {
		cfg.PolicyPinFixedTier = make(map[string]tstypes.Tier, len(d.Policy.PinFixedTier))
		for tag, tierName := range d.Policy.PinFixedTier {
			tier, err := parseTier(tierName)
			if err != nil {
				return coordinator.Config{}, opened, err
			}
			cfg.PolicyPinFixedTier[tag] = tier
		}
	}

	for _, rd := range d.Policy.Rules {
		rule, err := buildRule(rd)
		if err != nil {
			return coordinator.Config{}, opened, err
		}
		cfg.PolicyRules = append(cfg.PolicyRules, rule)
	}

	return cfg, opened, nil
}

func buildBackend(td TierDoc) (storage.Backend, error) {
	switch td.Backend {
	case "", "heap":
		return storage.NewHeapBackend(), nil
	case "bolt":
		if td.Path == "" {
			return nil, fmt.Errorf("tier %s: bolt backend requires path", td.Tier)
		}
		return storage.NewBoltBackend(td.Path)
	case "remote":
		if td.URL == "" {
			return nil, fmt.Errorf("tier %s: remote backend requires url", td.Tier)
		}
		return storage.NewRemoteBackend(td.URL, nil), nil
	default:
		return nil, fmt.Errorf("tier %s: unknown backend %q", td.Tier, td.Backend)
	}
}

// buildHealthChecker returns nil when td.HealthCheck names no override,
// letting Store fall back to probing backend.Flush directly. A "remote"
// backend defaults to an HTTP probe against its own HealthURL even with
// no explicit health_check block, since its Flush is a no-op.
func buildHealthChecker(td TierDoc, backend storage.Backend) (health.Checker, error) {
	hc := td.HealthCheck
	switch hc.Kind {
	case "":
		remote, ok := backend.(*storage.RemoteBackend)
		if !ok {
			return nil, nil
		}
		return health.NewHTTPChecker(remote.HealthURL()), nil
	case "http":
		target := hc.Target
		if target == "" {
			if remote, ok := backend.(*storage.RemoteBackend); ok {
				target = remote.HealthURL()
			}
		}
		if target == "" {
			return nil, fmt.Errorf("tier %s: http health check requires target", td.Tier)
		}
		return health.NewHTTPChecker(target), nil
	case "tcp":
		if hc.Target == "" {
			return nil, fmt.Errorf("tier %s: tcp health check requires target", td.Tier)
		}
		return health.NewTCPChecker(hc.Target), nil
	case "exec":
		if len(hc.Command) == 0 {
			return nil, fmt.Errorf("tier %s: exec health check requires command", td.Tier)
		}
		return health.NewExecChecker(hc.Command), nil
	default:
		return nil, fmt.Errorf("tier %s: unknown health check kind %q", td.Tier, hc.Kind)
	}
}

func buildRule(rd RuleDoc) (policy.Rule, error) {
	kind := policy.RuleKind(rd.Kind)
	var reason tstypes.MigrationReason
	switch kind {
	case policy.RuleAgeThreshold:
		reason = tstypes.ReasonAgeThreshold
	case policy.RuleAccessFrequencyBelow:
		reason = tstypes.ReasonAccessFrequency
	case policy.RulePromoteOnAccessCount:
		reason = tstypes.ReasonPromoteOnAccess
	default:
		return policy.Rule{}, fmt.Errorf("rule %s: unknown kind %q", rd.Name, rd.Kind)
	}
	fromTier, err := parseTier(rd.FromTier)
	if err != nil {
		return policy.Rule{}, fmt.Errorf("rule %s: %w", rd.Name, err)
	}
	toTier, err := parseTier(rd.ToTier)
	if err != nil {
		return policy.Rule{}, fmt.Errorf("rule %s: %w", rd.Name, err)
	}
	return policy.Rule{
		Name:           rd.Name,
		Kind:           kind,
		FromTier:       fromTier,
		ToTier:         toTier,
		Reason:         reason,
		AgeThreshold:   rd.AgeThreshold,
		CountThreshold: rd.CountThreshold,
	}, nil
}

func parseTier(name string) (tstypes.Tier, error) {
	switch name {
	case "hot":
		return tstypes.Hot, nil
	case "warm":
		return tstypes.Warm, nil
	case "cold":
		return tstypes.Cold, nil
	case "glacier":
		return tstypes.Glacier, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", name)
	}
}

func parseReplacement(name string) tstypes.ReplacementPolicy {
	switch name {
	case "lfu":
		return tstypes.PolicyLFU
	case "arc":
		return tstypes.PolicyARC
	default:
		return tstypes.PolicyLRU
	}
}

func parseAbortPreference(name string) coordinator.AbortPreference {
	if name == string(coordinator.PreferTarget) {
		return coordinator.PreferTarget
	}
	return coordinator.PreferSource
}
