// Package bus is the notifier boundary: an in-process publish/subscribe
// channel for state-change events. UI widgets, the sync engine and the
// status server consume this interface and nothing else.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/halcyon-app/netstate/pkg/types"
)

// defaultBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind starts losing events rather than blocking
// publishers.
const defaultBuffer = 16

// Bus fans events out to subscribers. Publishing never blocks; slow
// subscribers drop events and the drop is counted.
type Bus struct {
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[string]chan types.Event
	last    map[types.EventKind]types.Event
	dropped uint64
	closed  bool
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger: logger.With("component", "bus"),
		subs:   make(map[string]chan types.Event),
		last:   make(map[types.EventKind]types.Event),
	}
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is closed on Unsubscribe or when the bus shuts down.
func (b *Bus) Subscribe() (string, <-chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan types.Event, defaultBuffer)
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers an event to all current subscribers without blocking.
func (b *Bus) Publish(event types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last[event.Kind] = event

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.dropped++
			b.logger.Warn("dropping event for slow subscriber",
				"subscriber", id,
				"kind", event.Kind)
		}
	}
}

// Last returns the most recent event of the given kind, if any has been
// published.
func (b *Bus) Last(kind types.EventKind) (types.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	event, ok := b.last[kind]
	return event, ok
}

// Dropped returns the number of events lost to slow subscribers.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
