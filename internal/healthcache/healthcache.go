// Package healthcache provides TTL-bounded storage for backend health
// records. The default store is in-memory; a Redis-backed store lets several
// processes share probe results instead of each hammering the backend.
package healthcache

import (
	"context"
	"sync"
	"time"

	"github.com/halcyon-app/netstate/pkg/types"
)

// Store is the TTL cache consulted before dispatching a health probe.
type Store interface {
	// Get returns the cached record for a backend, if present and fresh.
	Get(ctx context.Context, backendID string) (types.BackendHealthRecord, bool, error)

	// Set stores a record with the given TTL, replacing any previous one
	// wholesale.
	Set(ctx context.Context, backendID string, rec types.BackendHealthRecord, ttl time.Duration) error

	// Delete drops a backend's record, forcing the next probe.
	Delete(ctx context.Context, backendID string) error
}

// memoryEntry pairs a record with its expiry.
type memoryEntry struct {
	rec     types.BackendHealthRecord
	expires time.Time
}

// Memory is the in-process Store used by default.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, backendID string) (types.BackendHealthRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[backendID]
	if !ok || time.Now().After(entry.expires) {
		delete(m.entries, backendID)
		return types.BackendHealthRecord{}, false, nil
	}
	return entry.rec, true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, backendID string, rec types.BackendHealthRecord, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[backendID] = memoryEntry{rec: rec, expires: time.Now().Add(ttl)}
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, backendID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, backendID)
	return nil
}
