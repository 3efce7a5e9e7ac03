package stream

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"nanogov/governor/pkg/enforce"
	"nanogov/governor/pkg/policy/store"
	"nanogov/governor/pkg/state"
)

// Event types published on the hub.
const (
	EventReady     = "ready"
	EventDecision  = "decision"
	EventAdmission = "admission"
)

// DefaultBuffer is the subscription buffer used for a non-positive size.
const DefaultBuffer = 32

// Event is one message sent to audit stream subscribers.
type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent marshals data into an event stamped with the current time.
func NewEvent(eventType string, data any) Event {
	var raw json.RawMessage
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			raw = b
		}
	}
	return Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano), Data: raw}
}

// AdmissionEvent is the payload of an admission event.
type AdmissionEvent struct {
	Op         string `json:"op"`
	PolicyID   string `json:"policy_id,omitempty"`
	Version    string `json:"version,omitempty"`
	Accepted   bool   `json:"accepted"`
	Reason     string `json:"reason,omitempty"`
	Generation uint64 `json:"policy_generation"`
	Active     int    `json:"active_policies"`
}

// Hub fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan Event]struct{}
	dropped atomic.Uint64
	onCount func(int)
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: map[chan Event]struct{}{}}
}

// OnSubscriberChange registers fn to receive the subscriber count after
// every Subscribe and Unsubscribe. It must be set before the hub is shared.
func (h *Hub) OnSubscriberChange(fn func(int)) {
	h.onCount = fn
}

// Subscribe registers a new subscriber channel.
func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.report(n)
	return ch
}

// Unsubscribe removes and closes ch. Repeated calls are no-ops.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	_, exists := h.subs[ch]
	if exists {
		delete(h.subs, ch)
		close(ch)
	}
	n := len(h.subs)
	h.mu.Unlock()
	if exists {
		h.report(n)
	}
}

// Publish delivers evt to every subscriber with room in its buffer.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped on full buffers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Observe publishes an enforcement decision. It has the enforce.Observer
// signature; the state itself is not streamed.
func (h *Hub) Observe(d enforce.Decision, _ *state.SystemState) {
	h.Publish(NewEvent(EventDecision, d))
}

// ObserveStoreEvent publishes a policy store mutation. It has the
// store listener signature.
func (h *Hub) ObserveStoreEvent(ev store.Event) {
	h.Publish(NewEvent(EventAdmission, AdmissionEvent{
		Op:         string(ev.Op),
		PolicyID:   ev.PolicyID,
		Version:    ev.Version,
		Accepted:   ev.Err == nil,
		Reason:     string(ev.Reason),
		Generation: ev.Generation,
		Active:     ev.Active,
	}))
}

func (h *Hub) report(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}
