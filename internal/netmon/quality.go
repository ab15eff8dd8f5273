package netmon

import (
	"math"

	"github.com/halcyon-app/netstate/pkg/types"
)

const (
	// Sentinel latency recorded when a probe fails. Degrades the score
	// instead of crashing the monitor.
	failedProbeLatencyMs = 5000

	// stabilityWindow bounds the rolling latency window used for the
	// standard-deviation stability estimate.
	stabilityWindow = 10

	// minStabilitySamples is the sample count below which stability is
	// pinned at 1.0 (not enough data to call the link unstable).
	minStabilitySamples = 3
)

// QualityScore computes the weighted network-quality score on a 0-100 scale.
//
// Starting from 100, three penalties apply:
//   - latency: 0 up to 50ms, linear 0→30 across 50-100ms, 30→60 across
//     100-200ms, flat 60 beyond 200ms
//   - stability: (1 - stability) * 25
//   - packet loss: loss * 25, loss in [0,1]
func QualityScore(latencyMs, stability, packetLoss float64) float64 {
	score := 100.0
	score -= latencyPenalty(latencyMs)
	score -= (1 - clamp01(stability)) * 25
	score -= clamp01(packetLoss) * 25
	if score < 0 {
		return 0
	}
	return score
}

func latencyPenalty(ms float64) float64 {
	switch {
	case ms <= 50:
		return 0
	case ms <= 100:
		return (ms - 50) / 50 * 30
	case ms <= 200:
		return 30 + (ms-100)/100*30
	default:
		return 60
	}
}

// QualityTier maps a score to its tier: >=80 excellent, >=60 good,
// >=40 fair, else poor. Callers are responsible for reporting QualityNone
// when disconnected or unmeasured.
func QualityTier(score float64) types.NetworkQuality {
	switch {
	case score >= 80:
		return types.QualityExcellent
	case score >= 60:
		return types.QualityGood
	case score >= 40:
		return types.QualityFair
	default:
		return types.QualityPoor
	}
}

// Stability estimates link stability from a window of latency samples (ms).
//
// With fewer than minStabilitySamples samples there is not enough signal,
// and stability is exactly 1.0. Otherwise it is 1 - stddev/500 (population
// standard deviation), floored at 0.
func Stability(latenciesMs []float64) float64 {
	if len(latenciesMs) < minStabilitySamples {
		return 1.0
	}

	var sum float64
	for _, l := range latenciesMs {
		sum += l
	}
	mean := sum / float64(len(latenciesMs))

	var variance float64
	for _, l := range latenciesMs {
		d := l - mean
		variance += d * d
	}
	variance /= float64(len(latenciesMs))

	stability := 1 - math.Sqrt(variance)/500
	if stability < 0 {
		return 0
	}
	return stability
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
