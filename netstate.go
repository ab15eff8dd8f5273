// Package netstate determines whether an application can currently exchange
// data with its backends and derives an adaptive data-synchronization policy
// from that determination.
//
// # Lifecycle
//
//  1. Load configuration
//  2. Construct the Service (monitor + coordinator + notifier bus)
//  3. Run the observation loops
//  4. Consume state via accessors, events via Bus, policy via CurrentPolicy
//  5. Run until shutdown signal
package netstate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/halcyon-app/netstate/internal/bus"
	"github.com/halcyon-app/netstate/internal/config"
	"github.com/halcyon-app/netstate/internal/coordinator"
	"github.com/halcyon-app/netstate/internal/healthcache"
	"github.com/halcyon-app/netstate/internal/netmon"
	"github.com/halcyon-app/netstate/internal/policy"
	"github.com/halcyon-app/netstate/pkg/types"
)

// Version is set at build time.
var Version = "dev"

// Options carries optional collaborators. Zero values select the defaults:
// OS interface source, TCP latency prober, HTTP health probe, in-memory
// health cache.
type Options struct {
	Logger *slog.Logger
	Source netmon.Source
	Prober netmon.Prober
	Probe  coordinator.Probe
	Cache  healthcache.Store
}

// Service is an explicitly constructed connectivity subsystem instance.
// There is no ambient global; embedders create as many independent instances
// as they need.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	events  *bus.Bus
	monitor *netmon.Monitor
	coord   *coordinator.Coordinator
}

// New wires a Service from configuration.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	events := bus.New(logger)

	monitor := netmon.New(netmon.Config{
		EnableConnectivityCheck: cfg.Monitor.ConnectivityCheckEnabled(),
		EnableLatencyCheck:      cfg.Monitor.LatencyCheckEnabled(),
		CheckInterval:           cfg.Monitor.CheckInterval,
		LatencyTestHost:         cfg.Monitor.LatencyTestHost,
		LatencyTestPort:         cfg.Monitor.LatencyTestPort,
		MaxHistorySize:          cfg.Monitor.MaxHistorySize,
		ConnectivityTimeout:     cfg.Monitor.ConnectivityTimeout,
	}, opts.Source, opts.Prober, events.Publish, logger)

	probe := opts.Probe
	if probe == nil {
		probe = coordinator.HTTPProbe(nil)
	}

	backends := make([]coordinator.Backend, len(cfg.Backends))
	for i, b := range cfg.Backends {
		backends[i] = coordinator.Backend{
			ID:             b.ID,
			HealthEndpoint: b.CustomHealthEndpoint,
			Interval:       b.HealthCheckInterval,
			Required:       b.RequiredEnabled(),
			Primary:        b.Primary,
		}
	}

	coord, err := coordinator.New(coordinator.Config{
		Backends:       backends,
		CheckInterval:  cfg.Coordinator.CheckInterval,
		BackgroundTTL:  cfg.Coordinator.BackgroundTTL,
		InteractiveTTL: cfg.Coordinator.InteractiveTTL,
		ProbeTimeout:   cfg.Coordinator.ProbeTimeout,
		MaxRetryCount:  cfg.Coordinator.MaxRetryCount,
		RetryBaseDelay: cfg.Coordinator.RetryBaseDelay,
		RetryMaxDelay:  cfg.Coordinator.RetryMaxDelay,
	}, monitor, probe, opts.Cache, events.Publish, logger)
	if err != nil {
		return nil, fmt.Errorf("building coordinator: %w", err)
	}

	return &Service{
		cfg:     cfg,
		logger:  logger,
		events:  events,
		monitor: monitor,
		coord:   coord,
	}, nil
}

// Run starts the monitor and coordinator loops and blocks until the context
// is cancelled or a loop fails.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting netstate",
		"version", Version,
		"backends", len(s.cfg.Backends))

	errCh := make(chan error, 2)

	go func() {
		errCh <- s.monitor.Run(ctx)
	}()
	go func() {
		errCh <- s.coord.Run(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the service down; late probe results are discarded.
func (s *Service) Close() {
	s.monitor.Close()
	s.events.Close()
}

// Bus exposes the notifier boundary for subscribers.
func (s *Service) Bus() *bus.Bus {
	return s.events
}

// Network returns the current connectivity snapshot.
func (s *Service) Network() netmon.Snapshot {
	return s.monitor.Snapshot()
}

// GetNetworkSummary formats the connection as
// "<Type> - <QualityLabel> (<latencyMs>ms)", or "offline".
func (s *Service) GetNetworkSummary() string {
	return s.monitor.Snapshot().Summary()
}

// State returns the current operation-mode state snapshot.
func (s *Service) State() types.ModeState {
	return s.coord.State()
}

// OperationMode returns the current mode.
func (s *Service) OperationMode() types.OperationMode {
	return s.coord.Mode()
}

// IsOffline reports whether the backend is currently unreachable.
func (s *Service) IsOffline() bool {
	return s.coord.IsOffline()
}

// CanSync reports whether the sync engine may push writes right now.
func (s *Service) CanSync() bool {
	return s.coord.CanSync()
}

// ShouldUseOfflineQueue reports whether writes must be queued locally.
func (s *Service) ShouldUseOfflineQueue() bool {
	return s.coord.ShouldUseOfflineQueue()
}

// BackendHealth returns an immutable snapshot of per-backend health records.
func (s *Service) BackendHealth() map[string]types.BackendHealthRecord {
	return s.coord.BackendHealth()
}

// ServiceAvailability returns per-backend health flags.
func (s *Service) ServiceAvailability() map[string]bool {
	return s.coord.ServiceAvailability()
}

// CheckStatus runs one background evaluation cycle.
func (s *Service) CheckStatus(ctx context.Context) types.ModeState {
	s.monitor.Refresh(ctx)
	return s.coord.CheckStatus(ctx)
}

// ForceCheck runs a rate-limited interactive re-check with the short probe
// cache window.
func (s *Service) ForceCheck(ctx context.Context) (types.ModeState, error) {
	s.monitor.Refresh(ctx)
	return s.coord.ForceCheck(ctx)
}

// CurrentPolicy derives the sync policy for the present state. Callers must
// re-derive after a state change rather than caching the result.
func (s *Service) CurrentPolicy() types.SyncPolicy {
	state := s.coord.State()
	quality := s.monitor.Snapshot().Quality
	return policy.Derive(state, s.coord.CanSync(), quality)
}

// History returns the bounded connectivity sample history.
func (s *Service) History() []types.ConnectionSample {
	return s.monitor.Snapshot().History
}
