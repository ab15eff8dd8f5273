// Package policy derives the adaptive sync policy from operation mode and
// network quality. Derivation is a pure function: no state, no side effects,
// identical inputs always produce identical policies.
package policy

import (
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

// Derive maps the current operation-mode state and network quality onto a
// sync policy.
//
// Precedence:
//  1. Cannot sync → offline-first policy; quality is ignored entirely
//  2. Hybrid → last-modified-wins with patient retries
//  3. Otherwise → server-wins
//  4. Interval and batch size scale with quality whenever syncing is possible
func Derive(state types.ModeState, canSync bool, quality types.NetworkQuality) types.SyncPolicy {
	if !canSync {
		return types.SyncPolicy{
			Strategy:           types.StrategyClientWins,
			SyncInterval:       time.Hour,
			BatchSize:          5,
			EnableAutoSync:     false,
			EnableOfflineQueue: true,
			RetryAttempts:      3,
			RetryDelay:         5 * time.Second,
		}
	}

	p := types.SyncPolicy{
		Strategy:       types.StrategyServerWins,
		EnableAutoSync: true,
		RetryAttempts:  3,
		RetryDelay:     5 * time.Second,
	}
	if state.Mode == types.ModeHybrid {
		p.Strategy = types.StrategyLastModified
		p.RetryAttempts = 5
		p.RetryDelay = 10 * time.Second
	}

	p.SyncInterval = intervalFor(quality)
	p.BatchSize = batchSizeFor(quality)
	return p
}

func intervalFor(quality types.NetworkQuality) time.Duration {
	switch quality {
	case types.QualityExcellent:
		return 5 * time.Minute
	case types.QualityGood:
		return 10 * time.Minute
	case types.QualityFair:
		return 15 * time.Minute
	case types.QualityPoor:
		return 30 * time.Minute
	default:
		return time.Hour
	}
}

func batchSizeFor(quality types.NetworkQuality) int {
	switch quality {
	case types.QualityExcellent:
		return 100
	case types.QualityGood:
		return 50
	case types.QualityFair:
		return 25
	case types.QualityPoor:
		return 10
	default:
		return 5
	}
}
