package types

import "time"

// EventKind discriminates bus event payloads. Dispatch is an exhaustive
// switch on this tag; no runtime type inspection is involved.
type EventKind string

const (
	// EventConnectivityChanged - the network link came up, went down or
	// switched type
	EventConnectivityChanged EventKind = "network-connectivity-changed"
	// EventOperationModeChanged - the (mode, reason) pair actually changed
	EventOperationModeChanged EventKind = "operation-mode-changed"
)

// ConnectivityChange is the payload for EventConnectivityChanged.
type ConnectivityChange struct {
	IsConnected    bool        `json:"is_connected"`
	ConnectionType NetworkType `json:"connection_type"`
}

// ModeChange is the payload for EventOperationModeChanged.
type ModeChange struct {
	Mode     OperationMode `json:"mode"`
	Reason   OfflineReason `json:"reason,omitempty"`
	Previous OperationMode `json:"previous,omitempty"`
}

// Event is the tagged union published on the notifier bus. Exactly one
// payload field matching Kind is non-nil.
type Event struct {
	Kind         EventKind           `json:"kind"`
	Timestamp    time.Time           `json:"timestamp"`
	Connectivity *ConnectivityChange `json:"connectivity,omitempty"`
	ModeChange   *ModeChange         `json:"mode_change,omitempty"`
}

// NewConnectivityEvent builds a connectivity-changed event.
func NewConnectivityEvent(connected bool, netType NetworkType, now time.Time) Event {
	return Event{
		Kind:      EventConnectivityChanged,
		Timestamp: now,
		Connectivity: &ConnectivityChange{
			IsConnected:    connected,
			ConnectionType: netType,
		},
	}
}

// NewModeChangeEvent builds an operation-mode-changed event.
func NewModeChangeEvent(mode OperationMode, reason OfflineReason, previous OperationMode, now time.Time) Event {
	return Event{
		Kind:      EventOperationModeChanged,
		Timestamp: now,
		ModeChange: &ModeChange{
			Mode:     mode,
			Reason:   reason,
			Previous: previous,
		},
	}
}
