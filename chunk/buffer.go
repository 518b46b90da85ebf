package chunk

import (
	"sync"

	"github.com/dialogkit/convmem/core"
)

// DefaultBufferCapacity is how many recent turns each client keeps in memory.
const DefaultBufferCapacity = 20

// Buffer holds the recent conversation turns per client. It is a bounded
// ring: appending beyond capacity evicts the oldest turn. State is process
// local only and rebuilt empty on restart.
type Buffer struct {
	mu       sync.RWMutex
	turns    map[string][]core.ConversationTurn
	capacity int
}

// NewBuffer creates a buffer with the given per-client capacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		turns:    make(map[string][]core.ConversationTurn),
		capacity: capacity,
	}
}

// Append adds a turn to the client's ring, evicting the oldest on overflow.
func (b *Buffer) Append(clientID string, turn core.ConversationTurn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ring := append(b.turns[clientID], turn)
	if len(ring) > b.capacity {
		ring = ring[len(ring)-b.capacity:]
	}
	b.turns[clientID] = ring
}

// Snapshot returns a copy of the client's turns, oldest first.
func (b *Buffer) Snapshot(clientID string) []core.ConversationTurn {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ring := b.turns[clientID]
	out := make([]core.ConversationTurn, len(ring))
	copy(out, ring)
	return out
}

// Recent returns up to n of the client's most recent turns, oldest first.
func (b *Buffer) Recent(clientID string, n int) []core.ConversationTurn {
	snap := b.Snapshot(clientID)
	if n > 0 && len(snap) > n {
		snap = snap[len(snap)-n:]
	}
	return snap
}

// Len returns how many turns the client currently has buffered.
func (b *Buffer) Len(clientID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.turns[clientID])
}
