package netmon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource returns a controllable tag set.
type fakeSource struct {
	mu   sync.Mutex
	tags []types.NetworkType
	err  error
}

func (f *fakeSource) set(tags []types.NetworkType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = tags
	f.err = nil
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSource) Tags(context.Context) ([]types.NetworkType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags, f.err
}

// fakeProber returns a fixed latency or error and counts invocations.
type fakeProber struct {
	mu      sync.Mutex
	latency time.Duration
	err     error
	calls   int
}

func (f *fakeProber) probe(context.Context, string, int, time.Duration) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.latency, f.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *eventRecorder) record(e types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

func newTestMonitor(t *testing.T, source *fakeSource, prober *fakeProber, rec *eventRecorder) *Monitor {
	t.Helper()
	var notify func(types.Event)
	if rec != nil {
		notify = rec.record
	}
	m := New(DefaultConfig(), source, prober.probe, notify, testLogger())
	t.Cleanup(m.Close)
	return m
}

func TestMonitor_ResolvesTypeByPriority(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkMobile, types.NetworkWifi, types.NetworkVPN}}
	m := newTestMonitor(t, source, &fakeProber{latency: 20 * time.Millisecond}, nil)

	m.Refresh(context.Background())

	snap := m.Snapshot()
	if !snap.IsConnected {
		t.Fatal("expected connected")
	}
	if snap.Type != types.NetworkWifi {
		t.Fatalf("expected wifi to win priority, got %v", snap.Type)
	}
}

func TestMonitor_QualityNoneUntilProbeSucceeds(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkWifi}}
	prober := &fakeProber{err: fmt.Errorf("connection refused")}
	m := newTestMonitor(t, source, prober, nil)

	m.Refresh(context.Background())

	snap := m.Snapshot()
	if snap.Quality != types.QualityNone {
		t.Fatalf("expected quality none before first successful probe, got %v", snap.Quality)
	}
	if snap.LatencyMs != failedProbeLatencyMs {
		t.Fatalf("expected sentinel latency %v, got %v", failedProbeLatencyMs, snap.LatencyMs)
	}
	if snap.PacketLoss != 1.0 {
		t.Fatalf("expected full packet loss, got %v", snap.PacketLoss)
	}
}

func TestMonitor_QualityAfterSuccessfulProbe(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkWifi}}
	prober := &fakeProber{latency: 40 * time.Millisecond}
	m := newTestMonitor(t, source, prober, nil)

	m.Refresh(context.Background())

	snap := m.Snapshot()
	if snap.Quality != types.QualityExcellent {
		t.Fatalf("expected excellent at 40ms, got %v (score %v)", snap.Quality, snap.QualityScore)
	}
	if got := snap.Summary(); got != "WiFi - Excellent (40ms)" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestMonitor_SummaryOffline(t *testing.T) {
	source := &fakeSource{tags: nil}
	m := newTestMonitor(t, source, &fakeProber{}, nil)

	m.Refresh(context.Background())

	if got := m.Snapshot().Summary(); got != "offline" {
		t.Fatalf("expected offline summary, got %q", got)
	}
}

func TestMonitor_HistoryRecordsChanges(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkEthernet}}
	rec := &eventRecorder{}
	m := newTestMonitor(t, source, &fakeProber{latency: 10 * time.Millisecond}, rec)

	ctx := context.Background()
	m.Refresh(ctx)
	source.set([]types.NetworkType{types.NetworkWifi})
	m.Refresh(ctx)
	source.set(nil)
	m.Refresh(ctx)
	// No change: must not grow history or emit events.
	m.Refresh(ctx)

	snap := m.Snapshot()
	if len(snap.History) != 3 {
		t.Fatalf("expected 3 history samples, got %d", len(snap.History))
	}

	last := snap.History[2]
	if last.IsConnected || last.NetworkType != types.NetworkNone || last.PreviousType != types.NetworkWifi {
		t.Fatalf("unexpected final sample: %+v", last)
	}

	events := rec.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 connectivity events, got %d", len(events))
	}
	for _, e := range events {
		if e.Kind != types.EventConnectivityChanged || e.Connectivity == nil {
			t.Fatalf("malformed event: %+v", e)
		}
	}
}

func TestMonitor_HistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistorySize = 5
	cfg.EnableLatencyCheck = false
	source := &fakeSource{}
	m := New(cfg, source, nil, nil, testLogger())
	defer m.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			source.set([]types.NetworkType{types.NetworkWifi})
		} else {
			source.set(nil)
		}
		m.Refresh(ctx)
	}

	snap := m.Snapshot()
	if len(snap.History) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(snap.History))
	}
}

func TestMonitor_SourceErrorIsNonFatal(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkWifi}}
	prober := &fakeProber{latency: 10 * time.Millisecond}
	m := newTestMonitor(t, source, prober, nil)

	ctx := context.Background()
	m.Refresh(ctx)

	source.fail(fmt.Errorf("netlink socket closed"))
	m.Refresh(ctx)

	snap := m.Snapshot()
	if snap.Err == "" {
		t.Fatal("expected stored source error")
	}
	// Connectivity state from before the error is retained.
	if !snap.IsConnected || snap.Type != types.NetworkWifi {
		t.Fatalf("expected previous state retained, got %+v", snap)
	}

	source.set([]types.NetworkType{types.NetworkWifi})
	m.Refresh(ctx)
	if m.Snapshot().Err != "" {
		t.Fatal("expected error cleared after recovery")
	}
}

func TestMonitor_ProbeDiscardedAfterClose(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkWifi}}
	prober := &fakeProber{latency: 10 * time.Millisecond}
	m := newTestMonitor(t, source, prober, nil)

	m.Refresh(context.Background())
	before := m.Snapshot()

	m.Close()
	m.probe(context.Background())

	after := m.Snapshot()
	if len(after.History) != len(before.History) || after.LatencyMs != before.LatencyMs {
		t.Fatal("probe result applied after close")
	}
}

func TestMonitor_RollingWindowLoss(t *testing.T) {
	source := &fakeSource{tags: []types.NetworkType{types.NetworkWifi}}
	prober := &fakeProber{latency: 20 * time.Millisecond}
	m := newTestMonitor(t, source, prober, nil)

	ctx := context.Background()
	m.Refresh(ctx)
	m.probe(ctx)
	m.probe(ctx)

	prober.mu.Lock()
	prober.err = fmt.Errorf("timeout")
	prober.mu.Unlock()
	m.probe(ctx)

	snap := m.Snapshot()
	if snap.PacketLoss != 0.25 {
		t.Fatalf("expected 1/4 packet loss, got %v", snap.PacketLoss)
	}
	// Sentinel latency drags stability below 1.0 once enough samples exist.
	if snap.Stability >= 1.0 {
		t.Fatalf("expected degraded stability, got %v", snap.Stability)
	}
}
