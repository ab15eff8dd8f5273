package policy

import (
	"testing"
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

func onlineState() types.ModeState {
	return types.NewModeState(3, time.Now())
}

func hybridState(t *testing.T) types.ModeState {
	t.Helper()
	mode := types.ModeHybrid
	reason := types.ReasonUnstableNetwork
	state, err := onlineState().Apply(types.StatePatch{Mode: &mode, Reason: &reason})
	if err != nil {
		t.Fatalf("building hybrid state: %v", err)
	}
	return state
}

func TestDerive_OfflineFirstWhenSyncImpossible(t *testing.T) {
	// Quality is ignored entirely when syncing is off the table.
	for _, q := range []types.NetworkQuality{types.QualityExcellent, types.QualityPoor, types.QualityNone} {
		p := Derive(onlineState(), false, q)
		if p.Strategy != types.StrategyClientWins {
			t.Fatalf("quality %v: expected client-wins, got %v", q, p.Strategy)
		}
		if p.SyncInterval != time.Hour || p.BatchSize != 5 {
			t.Fatalf("quality %v: expected 1h/5, got %v/%d", q, p.SyncInterval, p.BatchSize)
		}
		if p.EnableAutoSync || !p.EnableOfflineQueue {
			t.Fatalf("quality %v: expected auto-sync off and queue on", q)
		}
	}
}

func TestDerive_HybridUsesLastModified(t *testing.T) {
	p := Derive(hybridState(t), true, types.QualityFair)

	if p.Strategy != types.StrategyLastModified {
		t.Fatalf("expected last-modified in hybrid, got %v", p.Strategy)
	}
	if p.RetryAttempts != 5 || p.RetryDelay != 10*time.Second {
		t.Fatalf("expected patient retries (5/10s), got %d/%v", p.RetryAttempts, p.RetryDelay)
	}
	if !p.EnableAutoSync {
		t.Fatal("hybrid with sync available should keep auto-sync on")
	}
}

func TestDerive_OnlineUsesServerWins(t *testing.T) {
	p := Derive(onlineState(), true, types.QualityExcellent)

	if p.Strategy != types.StrategyServerWins {
		t.Fatalf("expected server-wins online, got %v", p.Strategy)
	}
	if p.RetryAttempts != 3 || p.RetryDelay != 5*time.Second {
		t.Fatalf("expected default retries (3/5s), got %d/%v", p.RetryAttempts, p.RetryDelay)
	}
}

func TestDerive_IntervalAndBatchScaleWithQuality(t *testing.T) {
	tests := []struct {
		quality  types.NetworkQuality
		interval time.Duration
		batch    int
	}{
		{types.QualityExcellent, 5 * time.Minute, 100},
		{types.QualityGood, 10 * time.Minute, 50},
		{types.QualityFair, 15 * time.Minute, 25},
		{types.QualityPoor, 30 * time.Minute, 10},
		{types.QualityNone, time.Hour, 5},
	}

	for _, tt := range tests {
		p := Derive(onlineState(), true, tt.quality)
		if p.SyncInterval != tt.interval {
			t.Errorf("quality %v: interval %v, want %v", tt.quality, p.SyncInterval, tt.interval)
		}
		if p.BatchSize != tt.batch {
			t.Errorf("quality %v: batch %d, want %d", tt.quality, p.BatchSize, tt.batch)
		}
	}
}

func TestDerive_IsDeterministic(t *testing.T) {
	state := hybridState(t)
	first := Derive(state, true, types.QualityGood)
	second := Derive(state, true, types.QualityGood)

	if first != second {
		t.Fatalf("identical inputs produced different policies:\n%+v\n%+v", first, second)
	}
}
