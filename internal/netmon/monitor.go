// Package netmon observes platform connectivity and measures link quality.
//
// # Design
//
// The monitor polls a platform Source for the set of raw connection tags,
// resolves them to a single network type, and measures latency with a raw
// TCP probe. A rolling window of latency samples feeds the stability
// estimate and packet-loss fraction; the three combine into the weighted
// quality score.
//
// # Probe Scheduling
//
// At most one probe is ever in flight. Each successful probe schedules
// exactly one delayed re-probe; a disconnect cancels the pending re-probe.
// Probe failures record a sentinel high latency and wait for the next
// scheduled cycle instead of retrying immediately.
package netmon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

// Config controls the connectivity monitor.
type Config struct {
	// EnableConnectivityCheck toggles platform link observation. When
	// disabled the monitor assumes a connected link of type "other".
	EnableConnectivityCheck bool

	// EnableLatencyCheck toggles the latency probe.
	EnableLatencyCheck bool

	// CheckInterval is the platform poll interval and the delay before a
	// scheduled re-probe.
	CheckInterval time.Duration

	// LatencyTestHost and LatencyTestPort locate the probe target.
	LatencyTestHost string
	LatencyTestPort int

	// MaxHistorySize bounds the connection sample history.
	MaxHistorySize int

	// ConnectivityTimeout bounds a single latency probe.
	ConnectivityTimeout time.Duration
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		EnableConnectivityCheck: true,
		EnableLatencyCheck:      true,
		CheckInterval:           30 * time.Second,
		LatencyTestHost:         "1.1.1.1",
		LatencyTestPort:         443,
		MaxHistorySize:          100,
		ConnectivityTimeout:     10 * time.Second,
	}
}

// Snapshot is an immutable view of the monitor state.
type Snapshot struct {
	IsConnected  bool                     `json:"is_connected"`
	Type         types.NetworkType        `json:"type"`
	Quality      types.NetworkQuality     `json:"quality"`
	QualityScore float64                  `json:"quality_score"`
	Stability    float64                  `json:"stability"`
	PacketLoss   float64                  `json:"packet_loss"`
	LatencyMs    float64                  `json:"latency_ms"`
	Err          string                   `json:"error,omitempty"`
	History      []types.ConnectionSample `json:"history,omitempty"`
}

// Summary renders the snapshot as "<Type> - <QualityLabel> (<latencyMs>ms)",
// or "offline" when disconnected.
func (s Snapshot) Summary() string {
	if !s.IsConnected {
		return "offline"
	}
	return fmt.Sprintf("%s - %s (%dms)", s.Type.Label(), s.Quality.Label(), int(s.LatencyMs))
}

// probeSample is one rolling-window entry. Failed probes carry the sentinel
// latency and count toward packet loss.
type probeSample struct {
	latencyMs float64
	ok        bool
}

// Monitor tracks platform connectivity and link quality.
type Monitor struct {
	cfg    Config
	source Source
	prober Prober
	notify func(types.Event)
	logger *slog.Logger

	mu               sync.Mutex
	observed         bool
	connected        bool
	netType          types.NetworkType
	typeSince        time.Time
	window           []probeSample
	successfulProbes int
	lastLatencyMs    float64
	history          []types.ConnectionSample
	errMsg           string
	disposed         bool
	probeInFlight    bool
	reprobe          *time.Timer
}

// New creates a monitor. source and prober may be nil, in which case the
// OS interface source and the TCP prober are used. notify may be nil.
func New(cfg Config, source Source, prober Prober, notify func(types.Event), logger *slog.Logger) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = 100
	}
	if cfg.ConnectivityTimeout <= 0 {
		cfg.ConnectivityTimeout = 10 * time.Second
	}
	if source == nil {
		source = NewInterfaceSource()
	}
	if prober == nil {
		prober = TCPProber
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		cfg:     cfg,
		source:  source,
		prober:  prober,
		notify:  notify,
		logger:  logger.With("component", "netmon"),
		netType: types.NetworkNone,
	}

	if !cfg.EnableConnectivityCheck {
		// No platform observation: assume a usable link so latency
		// probing still works.
		m.observed = true
		m.connected = true
		m.netType = types.NetworkOther
		m.typeSince = time.Now()
	}

	return m
}

// Run polls the platform source until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Refresh(ctx)

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Close()
			return ctx.Err()
		case <-ticker.C:
			m.Refresh(ctx)
		}
	}
}

// Refresh performs one observation cycle: read platform tags, apply the
// resolved type, and kick a latency probe when none is pending.
func (m *Monitor) Refresh(ctx context.Context) {
	if m.cfg.EnableConnectivityCheck {
		tags, err := m.source.Tags(ctx)
		if err != nil {
			// Platform errors are non-fatal; record and keep running.
			m.mu.Lock()
			m.errMsg = err.Error()
			m.mu.Unlock()
			m.logger.Warn("platform connectivity check failed", "error", err)
		} else {
			m.applyTags(tags, time.Now())
		}
	}

	m.probe(ctx)
}

// applyTags resolves the raw tag set and applies any connectivity change.
func (m *Monitor) applyTags(tags []types.NetworkType, now time.Time) {
	resolved := types.ResolveNetworkType(tags)
	connected := resolved.Connected()

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.errMsg = ""

	changed := !m.observed || connected != m.connected || resolved != m.netType
	if !changed {
		m.mu.Unlock()
		return
	}

	previous := m.netType
	var duration time.Duration
	if m.observed {
		duration = now.Sub(m.typeSince)
	}

	m.observed = true
	m.connected = connected
	m.netType = resolved
	m.typeSince = now

	m.history = append(m.history, types.ConnectionSample{
		Timestamp:    now,
		NetworkType:  resolved,
		IsConnected:  connected,
		PreviousType: previous,
		Duration:     duration,
	})
	if len(m.history) > m.cfg.MaxHistorySize {
		m.history = m.history[len(m.history)-m.cfg.MaxHistorySize:]
	}

	if !connected {
		m.cancelReprobeLocked()
	}
	notify := m.notify
	m.mu.Unlock()

	m.logger.Info("connectivity changed",
		"connected", connected,
		"type", resolved,
		"previous", previous)

	if notify != nil {
		notify(types.NewConnectivityEvent(connected, resolved, now))
	}
}

// probe runs a single latency measurement. Only one probe may be in flight;
// concurrent callers return immediately.
func (m *Monitor) probe(ctx context.Context) {
	m.mu.Lock()
	if !m.cfg.EnableLatencyCheck || m.disposed || m.probeInFlight || !m.connected {
		m.mu.Unlock()
		return
	}
	m.probeInFlight = true
	host := m.cfg.LatencyTestHost
	port := m.cfg.LatencyTestPort
	timeout := m.cfg.ConnectivityTimeout
	m.mu.Unlock()

	latency, err := m.prober(ctx, host, port, timeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeInFlight = false
	if m.disposed {
		// Torn down while the probe was in flight; discard the result.
		return
	}

	if err != nil {
		m.recordProbeLocked(failedProbeLatencyMs, false)
		m.logger.Debug("latency probe failed",
			"host", host,
			"port", port,
			"error", err)
		return
	}

	m.recordProbeLocked(float64(latency)/float64(time.Millisecond), true)
	m.scheduleReprobeLocked()
}

func (m *Monitor) recordProbeLocked(latencyMs float64, ok bool) {
	m.window = append(m.window, probeSample{latencyMs: latencyMs, ok: ok})
	if len(m.window) > stabilityWindow {
		m.window = m.window[len(m.window)-stabilityWindow:]
	}
	m.lastLatencyMs = latencyMs
	if ok {
		m.successfulProbes++
	}
}

// scheduleReprobeLocked arms the single delayed re-probe, replacing any
// pending one.
func (m *Monitor) scheduleReprobeLocked() {
	m.cancelReprobeLocked()
	m.reprobe = time.AfterFunc(m.cfg.CheckInterval, func() {
		m.probe(context.Background())
	})
}

func (m *Monitor) cancelReprobeLocked() {
	if m.reprobe != nil {
		m.reprobe.Stop()
		m.reprobe = nil
	}
}

// Close stops probing and marks the monitor disposed. Late probe results
// arriving after Close are discarded.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
	m.cancelReprobeLocked()
}

// Snapshot returns an immutable copy of the current monitor state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		IsConnected: m.connected,
		Type:        m.netType,
		Quality:     types.QualityNone,
		Stability:   1.0,
		LatencyMs:   m.lastLatencyMs,
		Err:         m.errMsg,
	}

	if len(m.history) > 0 {
		snap.History = make([]types.ConnectionSample, len(m.history))
		copy(snap.History, m.history)
	}

	latencies := make([]float64, len(m.window))
	failed := 0
	for i, s := range m.window {
		latencies[i] = s.latencyMs
		if !s.ok {
			failed++
		}
	}
	snap.Stability = Stability(latencies)
	if len(m.window) > 0 {
		snap.PacketLoss = float64(failed) / float64(len(m.window))
	}

	// Quality is "none" until the link is up and at least one probe has
	// succeeded; everything else is a guess.
	if !m.connected || m.successfulProbes == 0 {
		return snap
	}

	snap.QualityScore = QualityScore(m.lastLatencyMs, snap.Stability, snap.PacketLoss)
	snap.Quality = QualityTier(snap.QualityScore)
	return snap
}
