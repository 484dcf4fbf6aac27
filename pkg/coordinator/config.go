package coordinator

import (
	"time"

	"github.com/cuemby/tierstore/pkg/health"
	"github.com/cuemby/tierstore/pkg/policy"
	"github.com/cuemby/tierstore/pkg/storage"
	"github.com/cuemby/tierstore/pkg/tstypes"
)

// TierConfig describes one configured tier and the backend that serves
// it. Tiers must be listed hottest first; Store derives "the next tier
// down" and "the nearest durable tier" from this order.
type TierConfig struct {
	Tier              tstypes.Tier
	Backend           storage.Backend
	CapacityBytes     uint64
	ReplacementPolicy tstypes.ReplacementPolicy
	WatermarkLow      float64
	WatermarkHigh     float64

	// HealthChecker overrides the liveness probe Store uses for this
	// tier's backend. Nil defaults to health.NewBackendChecker, which
	// probes liveness via the backend's own Flush. A backend reachable
	// only over the network (RemoteBackend) should set this to an
	// HTTPChecker or TCPChecker instead, since Flush on such a backend
	// is a no-op and proves nothing about reachability.
	HealthChecker health.Checker
}

// RetryConfig bounds how a backend operation is retried before a
// caller sees BackendUnavailable.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseBackoff: 50 * time.Millisecond, MaxBackoff: 2 * time.Second}
}

// AbortPreference controls how startup recovery resolves a key found
// sitting in StateMigrating.
type AbortPreference string

const (
	PreferSource AbortPreference = "prefer_source"
	PreferTarget AbortPreference = "prefer_target"
)

// StartupConfig controls recovery behavior on New.
type StartupConfig struct {
	ReconcileOnBoot             bool
	AbortInterruptedMigrations  AbortPreference
}

// Config wires a Store to its subsystems. Tiers must be non-empty and
// listed hottest to coldest.
type Config struct {
	Tiers []TierConfig

	ManifestDir string

	PolicyRules        []policy.Rule
	PolicyInterval     time.Duration
	PolicyRetainTags   map[string]string
	PolicyPinFixedTier map[string]tstypes.Tier
	EvictionWatermark  float64

	MigrationWorkers    int
	MigrationQueueDepth int

	ReconcilerInterval time.Duration

	Startup StartupConfig

	HealthCheck health.Config

	Retries RetryConfig
}
