package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	Type string
	Data map[string]any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(eventType string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fields, _ := data.(map[string]any)
	p.events = append(p.events, recordedEvent{Type: eventType, Data: fields})
}

func (p *recordingPublisher) has(eventType, key string, value any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.Type == eventType && e.Data[key] == value {
			return true
		}
	}
	return false
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

func TestServer_EventPublisher(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	pub := &recordingPublisher{}
	srv.SetEventPublisher(pub)

	alice := login(t, srv, store, "alice")
	bob := login(t, srv, store, "bob")

	require.Eventually(t, func() bool {
		return pub.has(EventSessionAuthenticated, "username", "alice") &&
			pub.has(EventSessionAuthenticated, "username", "bob")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, pub.count(EventSessionPaired))

	chatID := createChat(t, alice, "alice", "bob", false)
	sendMessage(alice, chatID, "alice", "hi")
	alice.expect()
	bob.expect()

	require.Eventually(t, func() bool {
		return pub.has(EventMessageDelivered, "chatId", chatID) &&
			pub.has(EventMessageDelivered, "recipients", 2)
	}, time.Second, 10*time.Millisecond)

	require.True(t, srv.Kick("bob"))
	bob.expectClosed()

	require.Eventually(t, func() bool {
		return pub.has(EventSessionEvicted, "username", "bob")
	}, time.Second, 10*time.Millisecond)
}
