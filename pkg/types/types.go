// Package types defines the core domain types shared between the monitor,
// coordinator, policy deriver and any embedding application.
//
// # Design Principles
//
// 1. Simplicity: Types represent the domain model directly, no ORM abstractions
// 2. Serialization: All types are JSON-serializable for API transport
// 3. Immutability: Prefer value types; mutations create new instances
// 4. Validation: Types include Validate() methods for business rule enforcement
package types

import (
	"fmt"
	"time"
)

// =============================================================================
// NETWORK TYPE
// =============================================================================

// NetworkType identifies the kind of link currently carrying traffic.
type NetworkType string

const (
	NetworkEthernet  NetworkType = "ethernet"
	NetworkWifi      NetworkType = "wifi"
	NetworkVPN       NetworkType = "vpn"
	NetworkMobile    NetworkType = "mobile"
	NetworkBluetooth NetworkType = "bluetooth"
	NetworkOther     NetworkType = "other"
	NetworkNone      NetworkType = "none"
)

// networkTypePriority orders link types for resolution when the platform
// reports several simultaneous connections. Lower value wins.
var networkTypePriority = map[NetworkType]int{
	NetworkEthernet:  0,
	NetworkWifi:      1,
	NetworkVPN:       2,
	NetworkMobile:    3,
	NetworkBluetooth: 4,
	NetworkOther:     5,
	NetworkNone:      6,
}

// ResolveNetworkType collapses a set of raw connection tags into a single
// NetworkType. Ties are broken by fixed priority, not by arrival order.
func ResolveNetworkType(tags []NetworkType) NetworkType {
	best := NetworkNone
	bestPrio := networkTypePriority[NetworkNone]
	for _, t := range tags {
		prio, ok := networkTypePriority[t]
		if !ok {
			prio = networkTypePriority[NetworkOther]
			t = NetworkOther
		}
		if prio < bestPrio {
			best = t
			bestPrio = prio
		}
	}
	return best
}

// Connected reports whether the type represents a usable link.
func (t NetworkType) Connected() bool {
	return t != NetworkNone && t != ""
}

// Label returns the human-readable form used in network summaries.
func (t NetworkType) Label() string {
	switch t {
	case NetworkEthernet:
		return "Ethernet"
	case NetworkWifi:
		return "WiFi"
	case NetworkVPN:
		return "VPN"
	case NetworkMobile:
		return "Mobile"
	case NetworkBluetooth:
		return "Bluetooth"
	case NetworkNone:
		return "None"
	default:
		return "Other"
	}
}

// =============================================================================
// NETWORK QUALITY
// =============================================================================

// NetworkQuality is the tiered assessment of the raw network connection,
// independent of backend reachability.
type NetworkQuality string

const (
	QualityExcellent NetworkQuality = "excellent"
	QualityGood      NetworkQuality = "good"
	QualityFair      NetworkQuality = "fair"
	QualityPoor      NetworkQuality = "poor"
	QualityNone      NetworkQuality = "none"
)

// qualityRank orders quality tiers from best to worst for comparisons.
var qualityRank = map[NetworkQuality]int{
	QualityExcellent: 4,
	QualityGood:      3,
	QualityFair:      2,
	QualityPoor:      1,
	QualityNone:      0,
}

// AtLeast reports whether q is the same tier as other or better.
func (q NetworkQuality) AtLeast(other NetworkQuality) bool {
	return qualityRank[q] >= qualityRank[other]
}

// Label returns the human-readable form used in network summaries.
func (q NetworkQuality) Label() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityFair:
		return "Fair"
	case QualityPoor:
		return "Poor"
	default:
		return "Unknown"
	}
}

// =============================================================================
// SAMPLES & HEALTH RECORDS
// =============================================================================

// ConnectionSample records a single connectivity change observation.
// Samples are appended to a bounded, insertion-ordered history.
type ConnectionSample struct {
	Timestamp    time.Time     `json:"timestamp"`
	NetworkType  NetworkType   `json:"network_type"`
	IsConnected  bool          `json:"is_connected"`
	PreviousType NetworkType   `json:"previous_type,omitempty"`
	Duration     time.Duration `json:"duration"` // time spent on the previous type
}

// BackendHealthRecord is the cached outcome of one backend health probe.
//
// Records are owned exclusively by the coordinator and replaced wholesale on
// each probe cycle; consumers only ever see immutable copies.
type BackendHealthRecord struct {
	BackendID     string        `json:"backend_id"`
	IsHealthy     bool          `json:"is_healthy"`
	LastCheckTime time.Time     `json:"last_check_time"`
	ResponseTime  time.Duration `json:"response_time"`
	Error         string        `json:"error,omitempty"`
	Reason        OfflineReason `json:"reason,omitempty"` // failure classification, empty when healthy
}

// Validate checks that the record identifies a backend.
func (r *BackendHealthRecord) Validate() error {
	if r.BackendID == "" {
		return fmt.Errorf("backend id is required")
	}
	if r.LastCheckTime.IsZero() {
		return fmt.Errorf("last check time is required")
	}
	return nil
}

// =============================================================================
// OPERATION MODE
// =============================================================================

// OperationMode is the top-level state describing whether the application can
// currently reach its backend services.
type OperationMode string

const (
	// ModeOnline - network up and all required backends healthy
	ModeOnline OperationMode = "online"
	// ModeServiceOffline - network up but the primary backend is unreachable
	ModeServiceOffline OperationMode = "service_offline"
	// ModeFullyOffline - no network connectivity at all
	ModeFullyOffline OperationMode = "fully_offline"
	// ModeHybrid - degraded: unstable network or partial backend outage
	ModeHybrid OperationMode = "hybrid"
)

// Valid reports whether the mode is one of the four known states.
func (m OperationMode) Valid() bool {
	switch m {
	case ModeOnline, ModeServiceOffline, ModeFullyOffline, ModeHybrid:
		return true
	}
	return false
}

// OfflineReason explains why the application is not fully online.
type OfflineReason string

const (
	ReasonNone               OfflineReason = ""
	ReasonNoNetwork          OfflineReason = "no_network"
	ReasonUnstableNetwork    OfflineReason = "unstable_network"
	ReasonServiceUnavailable OfflineReason = "service_unavailable"
	ReasonServiceTimeout     OfflineReason = "service_timeout"
	ReasonServiceError       OfflineReason = "service_error"
	ReasonUserChoice         OfflineReason = "user_choice"
	ReasonMaintenance        OfflineReason = "maintenance"
)
