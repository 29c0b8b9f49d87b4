// Package events keeps a short in-memory history of delivery outcomes and
// fans them out to live subscribers. Nothing here is persisted.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Activity types published by the gate and the handler pool.
const (
	TypeRejected         = "webhook.rejected"
	TypeHandlerScheduled = "handler.scheduled"
	TypeHandlerCompleted = "handler.completed"
	TypeHandlerFailed    = "handler.failed"
)

type Event struct {
	ID   int64     `json:"id"`
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data []byte    `json:"data"` // JSON payload
}

// Rejection is the data of a TypeRejected event.
type Rejection struct {
	Event    string `json:"event,omitempty"`
	Delivery string `json:"delivery,omitempty"`
	Reason   string `json:"reason"`
	Status   int    `json:"status"`
}

// Invocation is the data of the handler.* events.
type Invocation struct {
	ID         string `json:"invocation_id"`
	Event      string `json:"event"`
	Delivery   string `json:"delivery,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
// A nil *Hub drops everything published to it.
type Hub struct {
	nextID atomic.Int64

	mu   sync.Mutex
	ring []Event // fixed capacity, written at next
	next int
	full bool

	subs      map[int]chan Event
	nextSubID int
}

// subscriberBuffer bounds how far a live client may lag before it misses events.
const subscriberBuffer = 64

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Rejected records a request the gate or the dispatcher turned away.
func (h *Hub) Rejected(r Rejection) {
	h.publish(TypeRejected, r)
}

// HandlerScheduled records a handler invocation handed to the worker pool.
func (h *Hub) HandlerScheduled(inv Invocation) {
	h.publish(TypeHandlerScheduled, inv)
}

// HandlerFinished records the outcome of a handler invocation. A non-empty
// inv.Error marks it failed.
func (h *Hub) HandlerFinished(inv Invocation) {
	if inv.Error != "" {
		h.publish(TypeHandlerFailed, inv)
		return
	}
	h.publish(TypeHandlerCompleted, inv)
}

func (h *Hub) publish(kind string, data any) {
	if h == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		raw = []byte("{}")
	}
	ev := Event{
		ID:   h.nextID.Add(1),
		Type: kind,
		At:   time.Now().UTC(),
		Data: raw,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.ring[h.next] = ev
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}

	for _, ch := range h.subs {
		// A slow client loses events rather than stalling the request path.
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a live listener. The returned func unsubscribes and
// closes the channel; calling it twice is harmless.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

// SnapshotSince returns buffered events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	older, newer := h.ring[h.next:], h.ring[:h.next]
	if !h.full {
		older = nil
	}

	var out []Event
	for _, part := range [][]Event{older, newer} {
		for _, ev := range part {
			if ev.ID > lastID {
				out = append(out, ev)
			}
		}
	}
	return out
}
