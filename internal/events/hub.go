// Package events keeps a bounded in-memory history of background task outcomes.
package events

import (
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the gateway.
const (
	TypeTaskSucceeded = "task.succeeded"
	TypeTaskFailed    = "task.failed"
	TypeTaskPanicked  = "task.panicked"
	TypeTaskDropped   = "task.dropped"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is a ring buffer of the most recent events.
type Hub struct {
	nextID atomic.Int64
	now    func() time.Time

	mu     sync.Mutex
	ring   []Event
	start  int
	size   int
	counts map[string]int64
}

// NewHub returns a Hub that keeps the last capacity events (100 when capacity <= 0).
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		now:    time.Now,
		ring:   make([]Event, capacity),
		counts: make(map[string]int64),
	}
}

func (h *Hub) Publish(eventType string, data any) {
	id := h.nextID.Add(1)

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   h.now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	h.counts[eventType]++
	h.mu.Unlock()
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

// Recent returns up to n buffered events of the given types, newest-first.
func (h *Hub) Recent(n int, types ...string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, min(n, h.size))
	for i := h.size - 1; i >= 0 && len(out) < n; i-- {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if len(types) == 0 || slices.Contains(types, ev.Type) {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns how many events of a type were ever published, including
// those already evicted from the buffer.
func (h *Hub) Count(eventType string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counts[eventType]
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
