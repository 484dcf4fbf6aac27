package health

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tierstore/pkg/events"
	"github.com/cuemby/tierstore/pkg/log"
	"github.com/cuemby/tierstore/pkg/metrics"
)

// Monitor runs one Checker on a ticker and tracks its Status, so a
// backend's liveness state survives across checks instead of being
// re-derived fresh from a single probe. A transition between healthy
// and unhealthy publishes a backend event.
type Monitor struct {
	name    string
	backend string // storage.Backend.Kind(), for metrics/event labels
	checker Checker
	config  Config
	broker  *events.Broker

	status *Status
	logger zerolog.Logger
	stopCh chan struct{}
}

// NewMonitor constructs a Monitor for one named backend. broker may be
// nil, in which case state transitions are logged but not published.
func NewMonitor(name, backendKind string, checker Checker, config Config, broker *events.Broker) *Monitor {
	return &Monitor{
		name:    name,
		backend: backendKind,
		checker: checker,
		config:  config,
		broker:  broker,
		status:  NewStatus(),
		logger:  log.WithComponent("health").With().Str("backend", name).Logger(),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the ticker-driven probe loop.
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops the probe loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
}

// Status returns the monitor's current health status.
func (m *Monitor) Status() Status {
	return *m.status
}

func (m *Monitor) run() {
	if m.config.StartPeriod > 0 {
		select {
		case <-time.After(m.config.StartPeriod):
		case <-m.stopCh:
			return
		}
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.probe()
	for {
		select {
		case <-ticker.C:
			m.probe()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	wasHealthy := m.status.Healthy
	result := m.checker.Check(ctx)
	m.status.Update(result, m.config)

	if !result.Healthy {
		metrics.BackendErrorsTotal.WithLabelValues(m.backend, "liveness").Inc()
	}

	if wasHealthy && !m.status.Healthy {
		m.logger.Warn().Str("message", result.Message).Msg("backend marked unavailable")
		m.publish(events.EventBackendUnavail, result.Message)
	} else if !wasHealthy && m.status.Healthy {
		m.logger.Info().Msg("backend recovered")
		m.publish(events.EventBackendRecovered, result.Message)
	}
}

func (m *Monitor) publish(typ events.EventType, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:    typ,
		Message: message,
		Metadata: map[string]string{
			"backend": m.name,
		},
	})
}
