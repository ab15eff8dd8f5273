// Package coordinator derives the application operation mode from network
// connectivity and backend health.
//
// # Evaluation
//
// Every cycle recomputes the mode from scratch; nothing is patched
// incrementally:
//
//  1. Disconnected link → FullyOffline, regardless of cached backend health
//  2. All required backends healthy (and the link not poor) → Online
//  3. Primary backend failing → ServiceOffline, reason classified from the
//     probe failure
//  4. Otherwise → Hybrid (unstable link or partial backend degradation,
//     distinguished by reason)
//
// # Probe Caching
//
// Each backend's probe result is cached for a TTL (long for background
// polling, short for interactive re-checks). Calls arriving while a probe is
// in flight attach to the pending result instead of dispatching a duplicate.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/halcyon-app/netstate/internal/healthcache"
	"github.com/halcyon-app/netstate/internal/netmon"
	"github.com/halcyon-app/netstate/pkg/types"
)

// ErrThrottled is returned by ForceCheck when interactive re-checks arrive
// faster than the rate limit allows.
var ErrThrottled = fmt.Errorf("interactive re-check throttled")

// NetworkStatus is the slice of the connectivity monitor the coordinator
// consumes.
type NetworkStatus interface {
	Snapshot() netmon.Snapshot
}

// Config controls the coordinator.
type Config struct {
	// Backends to monitor. The first one is primary unless another is
	// flagged.
	Backends []Backend

	// CheckInterval is the evaluation poll interval.
	CheckInterval time.Duration

	// BackgroundTTL caches probe results between background polls.
	BackgroundTTL time.Duration

	// InteractiveTTL is the shorter cache window used by ForceCheck.
	InteractiveTTL time.Duration

	// ProbeTimeout bounds a single backend probe.
	ProbeTimeout time.Duration

	// MaxRetryCount caps the consecutive-failure counter; once reached,
	// CanRetry stays false until the backoff window elapses.
	MaxRetryCount int

	// RetryBaseDelay and RetryMaxDelay shape the exponential backoff.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// DefaultConfig returns the coordinator defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  30 * time.Second,
		BackgroundTTL:  2 * time.Minute,
		InteractiveTTL: 10 * time.Second,
		ProbeTimeout:   10 * time.Second,
		MaxRetryCount:  3,
		RetryBaseDelay: 5 * time.Second,
		RetryMaxDelay:  5 * time.Minute,
	}
}

// Coordinator owns the operation-mode state machine.
type Coordinator struct {
	cfg     Config
	network NetworkStatus
	probe   Probe
	cache   healthcache.Store
	notify  func(types.Event)
	logger  *slog.Logger
	limiter *rate.Limiter

	flight singleflight.Group

	mu     sync.Mutex
	state  types.ModeState
	health map[string]types.BackendHealthRecord
}

// New creates a coordinator. cache may be nil (in-memory store), notify may
// be nil, probe must not be nil when backends are configured.
func New(cfg Config, network NetworkStatus, probe Probe, cache healthcache.Store, notify func(types.Event), logger *slog.Logger) (*Coordinator, error) {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.BackgroundTTL <= 0 {
		cfg.BackgroundTTL = def.BackgroundTTL
	}
	if cfg.InteractiveTTL <= 0 {
		cfg.InteractiveTTL = def.InteractiveTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	if cfg.MaxRetryCount <= 0 {
		cfg.MaxRetryCount = def.MaxRetryCount
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		cfg.RetryMaxDelay = def.RetryMaxDelay
	}

	for _, b := range cfg.Backends {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("invalid backend config: %w", err)
		}
	}
	if len(cfg.Backends) > 0 && probe == nil {
		return nil, fmt.Errorf("probe function is required when backends are configured")
	}
	if network == nil {
		return nil, fmt.Errorf("network status source is required")
	}
	if cache == nil {
		cache = healthcache.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		cfg:     cfg,
		network: network,
		probe:   probe,
		cache:   cache,
		notify:  notify,
		logger:  logger.With("component", "coordinator"),
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		state:   types.NewModeState(cfg.MaxRetryCount, time.Now()),
		health:  make(map[string]types.BackendHealthRecord),
	}, nil
}

// Run evaluates on the configured interval until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	c.CheckStatus(ctx)

	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.CheckStatus(ctx)
		}
	}
}

// CheckStatus runs one background evaluation cycle and returns the
// resulting state.
func (c *Coordinator) CheckStatus(ctx context.Context) types.ModeState {
	return c.evaluate(ctx, c.cfg.BackgroundTTL)
}

// ForceCheck runs an interactive evaluation with the short cache TTL.
// Re-checks are rate limited; throttled calls return the current state and
// ErrThrottled.
func (c *Coordinator) ForceCheck(ctx context.Context) (types.ModeState, error) {
	if !c.limiter.Allow() {
		return c.State(), ErrThrottled
	}
	return c.evaluate(ctx, c.cfg.InteractiveTTL), nil
}

// evaluate recomputes the operation mode from a fresh connectivity snapshot
// and (possibly cached) backend health.
func (c *Coordinator) evaluate(ctx context.Context, ttl time.Duration) types.ModeState {
	now := time.Now()
	snap := c.network.Snapshot()

	if !snap.IsConnected {
		return c.transition(types.ModeFullyOffline, types.ReasonNoNetwork, now)
	}

	records := c.checkBackends(ctx, ttl)

	c.mu.Lock()
	c.health = records
	c.mu.Unlock()

	primary, hasPrimary := c.primaryBackend()
	allRequiredHealthy := true
	for _, b := range c.cfg.Backends {
		if !b.Required {
			continue
		}
		if rec, ok := records[b.ID]; !ok || !rec.IsHealthy {
			allRequiredHealthy = false
			break
		}
	}

	switch {
	case allRequiredHealthy && snap.Quality != types.QualityPoor:
		return c.transition(types.ModeOnline, types.ReasonNone, now)

	case hasPrimary && !records[primary.ID].IsHealthy:
		reason := records[primary.ID].Reason
		if reason == types.ReasonNone {
			reason = types.ReasonServiceUnavailable
		}
		return c.transition(types.ModeServiceOffline, reason, now)

	case snap.Quality == types.QualityPoor:
		return c.transition(types.ModeHybrid, types.ReasonUnstableNetwork, now)

	default:
		// Primary is up but some other required backend is degraded.
		return c.transition(types.ModeHybrid, types.ReasonServiceUnavailable, now)
	}
}

// checkBackends probes all configured backends, honoring the TTL cache.
func (c *Coordinator) checkBackends(ctx context.Context, ttl time.Duration) map[string]types.BackendHealthRecord {
	records := make(map[string]types.BackendHealthRecord, len(c.cfg.Backends))
	if len(c.cfg.Backends) == 0 {
		return records
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range c.cfg.Backends {
		backend := backend
		g.Go(func() error {
			backendTTL := ttl
			if backend.Interval > 0 && backend.Interval < backendTTL {
				backendTTL = backend.Interval
			}
			rec := c.checkBackend(gctx, backend, backendTTL)
			mu.Lock()
			records[backend.ID] = rec
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; failures live in the records

	return records
}

// checkBackend returns the backend's health record, from cache when fresh.
// Concurrent callers share a single in-flight probe per backend.
func (c *Coordinator) checkBackend(ctx context.Context, backend Backend, ttl time.Duration) types.BackendHealthRecord {
	if rec, ok, err := c.cache.Get(ctx, backend.ID); err == nil && ok {
		return rec
	} else if err != nil {
		c.logger.Warn("health cache read failed", "backend", backend.ID, "error", err)
	}

	v, _, _ := c.flight.Do(backend.ID, func() (any, error) {
		started := time.Now()
		probeErr := c.safeProbe(ctx, backend)

		rec := types.BackendHealthRecord{
			BackendID:     backend.ID,
			IsHealthy:     probeErr == nil,
			LastCheckTime: time.Now(),
			ResponseTime:  time.Since(started),
		}
		if probeErr != nil {
			rec.Error = probeErr.Error()
			rec.Reason = ClassifyFailure(probeErr)
			c.logger.Debug("backend probe failed",
				"backend", backend.ID,
				"reason", rec.Reason,
				"error", probeErr)
		}

		if err := c.cache.Set(ctx, backend.ID, rec, ttl); err != nil {
			c.logger.Warn("health cache write failed", "backend", backend.ID, "error", err)
		}
		return rec, nil
	})
	return v.(types.BackendHealthRecord)
}

// safeProbe runs the probe with a timeout and converts panics into errors;
// nothing raised by a probe may cross this boundary.
func (c *Coordinator) safeProbe(ctx context.Context, backend Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	return c.probe(probeCtx, backend)
}

// transition replaces the state snapshot atomically and emits a mode-changed
// event only when (mode, reason) actually changed.
func (c *Coordinator) transition(mode types.OperationMode, reason types.OfflineReason, now time.Time) types.ModeState {
	c.mu.Lock()
	prev := c.state

	patch := types.StatePatch{Mode: &mode, Reason: &reason, Now: now}
	if mode != types.ModeOnline {
		retries := prev.RetryCount + 1
		patch.RetryCount = &retries
		nextRetry := now.Add(c.backoffDelay(retries))
		patch.NextRetryAt = &nextRetry
	}

	next, err := prev.Apply(patch)
	if err != nil {
		// A rejected patch means a bug in this file, not a runtime
		// condition; keep the previous state and complain loudly.
		c.mu.Unlock()
		c.logger.Error("rejected state transition", "mode", mode, "reason", reason, "error", err)
		return prev
	}
	c.state = next
	changed := next.Mode != prev.Mode || next.Reason != prev.Reason
	notify := c.notify
	c.mu.Unlock()

	if changed {
		c.logger.Info("operation mode changed",
			"mode", next.Mode,
			"reason", next.Reason,
			"previous", prev.Mode,
			"retry_count", next.RetryCount)
		if notify != nil {
			notify(types.NewModeChangeEvent(next.Mode, next.Reason, prev.Mode, now))
		}
	}
	return next
}

// backoffDelay grows exponentially with the retry count and is capped, so
// consecutive delays are monotonically non-decreasing.
func (c *Coordinator) backoffDelay(retries int) time.Duration {
	delay := c.cfg.RetryBaseDelay
	for i := 1; i < retries; i++ {
		delay *= 2
		if delay >= c.cfg.RetryMaxDelay {
			return c.cfg.RetryMaxDelay
		}
	}
	return delay
}

func (c *Coordinator) primaryBackend() (Backend, bool) {
	for _, b := range c.cfg.Backends {
		if b.Primary {
			return b, true
		}
	}
	if len(c.cfg.Backends) > 0 {
		return c.cfg.Backends[0], true
	}
	return Backend{}, false
}

// State returns the current immutable state snapshot.
func (c *Coordinator) State() types.ModeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mode returns the current operation mode.
func (c *Coordinator) Mode() types.OperationMode {
	return c.State().Mode
}

// IsOffline reports whether the backend is unreachable (fully offline or
// service offline). Hybrid still counts as reachable.
func (c *Coordinator) IsOffline() bool {
	switch c.State().Mode {
	case types.ModeFullyOffline, types.ModeServiceOffline:
		return true
	}
	return false
}

// CanSync reports whether the sync engine may currently push writes: Online
// always, Hybrid only while the primary backend itself is healthy.
func (c *Coordinator) CanSync() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Mode {
	case types.ModeOnline:
		return true
	case types.ModeHybrid:
		primary, ok := c.primaryBackend()
		if !ok {
			return true // no backends configured, nothing can be unreachable
		}
		rec, ok := c.health[primary.ID]
		return ok && rec.IsHealthy
	default:
		return false
	}
}

// ShouldUseOfflineQueue reports whether writes must be queued locally.
func (c *Coordinator) ShouldUseOfflineQueue() bool {
	return !c.CanSync()
}

// CanRetry reports whether an immediate recovery attempt is allowed.
func (c *Coordinator) CanRetry() bool {
	return c.State().CanRetry(time.Now())
}

// ServiceAvailability returns per-backend health flags.
func (c *Coordinator) ServiceAvailability() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	avail := make(map[string]bool, len(c.health))
	for id, rec := range c.health {
		avail[id] = rec.IsHealthy
	}
	return avail
}

// BackendHealth returns an immutable snapshot of all health records.
func (c *Coordinator) BackendHealth() map[string]types.BackendHealthRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]types.BackendHealthRecord, len(c.health))
	for id, rec := range c.health {
		out[id] = rec
	}
	return out
}
