package types

import "time"

// SyncStrategy decides how the sync engine resolves concurrent edits.
type SyncStrategy string

const (
	// StrategyServerWins - backend copy is authoritative
	StrategyServerWins SyncStrategy = "server_wins"
	// StrategyClientWins - local copy is authoritative (offline-first)
	StrategyClientWins SyncStrategy = "client_wins"
	// StrategyLastModified - newest timestamp wins (hybrid operation)
	StrategyLastModified SyncStrategy = "last_modified"
)

// SyncPolicy is the adaptive configuration handed to the sync engine.
//
// Policies are purely derived from (mode state, quality); they are never
// persisted on their own and must be recomputed after any state change rather
// than cached by consumers.
type SyncPolicy struct {
	Strategy           SyncStrategy  `json:"strategy"`
	SyncInterval       time.Duration `json:"sync_interval"`
	BatchSize          int           `json:"batch_size"`
	EnableAutoSync     bool          `json:"enable_auto_sync"`
	EnableOfflineQueue bool          `json:"enable_offline_queue"`
	RetryAttempts      int           `json:"retry_attempts"`
	RetryDelay         time.Duration `json:"retry_delay"`
}
