package session

import (
	"sort"
	"sync"

	"boltforge/internal/protocol"
)

// snapshotTypes carry the full current value of something, so only the
// latest one needs replaying.
var snapshotTypes = map[string]bool{
	protocol.TypeSessionUpdate: true,
	protocol.TypeStepsUpdate:   true,
	protocol.TypeFilesTree:     true,
	protocol.TypeFilesUpdate:   true,
	protocol.TypeSandboxReady:  true,
	protocol.TypeSandboxFailed: true,
}

type bufferedEvent struct {
	seq   uint64
	event Event
}

// RingBuffer holds what a late subscriber needs to catch up on a session:
// the latest event of every snapshot type, plus a fixed-capacity window of
// streamed events (process output, chat, errors). Snapshots are never
// evicted by output.
type RingBuffer struct {
	mu       sync.RWMutex
	seq      uint64
	latest   map[string]bufferedEvent
	buf      []bufferedEvent
	capacity int
	pos      int // next write position
	full     bool
}

// NewRingBuffer creates a ring buffer keeping up to capacity streamed events.
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		latest:   make(map[string]bufferedEvent),
		buf:      make([]bufferedEvent, capacity),
		capacity: capacity,
	}
}

// Write records an event.
func (rb *RingBuffer) Write(event Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	be := bufferedEvent{seq: rb.seq, event: event}

	if snapshotTypes[event.Type] {
		rb.latest[event.Type] = be
		return
	}

	rb.buf[rb.pos] = be
	rb.pos = (rb.pos + 1) % rb.capacity
	if rb.pos == 0 {
		rb.full = true
	}
}

// ReadAll returns the buffered events in the order they were written.
func (rb *RingBuffer) ReadAll() []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var streamed []bufferedEvent
	if rb.full {
		streamed = append(streamed, rb.buf[rb.pos:]...)
	}
	streamed = append(streamed, rb.buf[:rb.pos]...)

	all := make([]bufferedEvent, 0, len(streamed)+len(rb.latest))
	all = append(all, streamed...)
	for _, be := range rb.latest {
		all = append(all, be)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	result := make([]Event, len(all))
	for i, be := range all {
		result[i] = be.event
	}
	return result
}
