package relay

import "sync"

const (
	EventSessionPaired        = "session_paired"
	EventSessionAuthenticated = "session_authenticated"
	EventSessionEvicted       = "session_evicted"
	EventMessageDelivered     = "message_delivered"
)

// EventPublisher receives relay activity for operator feeds. Publish must
// not block.
type EventPublisher interface {
	Publish(eventType string, data any)
}

type eventHook struct {
	mu  sync.RWMutex
	pub EventPublisher
}

func (h *eventHook) set(pub EventPublisher) {
	h.mu.Lock()
	h.pub = pub
	h.mu.Unlock()
}

func (h *eventHook) emit(eventType string, data any) {
	if h == nil {
		return
	}
	h.mu.RLock()
	pub := h.pub
	h.mu.RUnlock()
	if pub != nil {
		pub.Publish(eventType, data)
	}
}
