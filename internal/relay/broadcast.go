package relay

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/protocol"
	"github.com/openclaw/chat-relay-go/internal/session"
)

const conversationStripes = 64

// Broadcaster fans chat messages out to the live sessions of a
// conversation's participants.
type Broadcaster struct {
	registry *session.Registry
	store    Store
	evict    func(*session.Session, error)
	events   *eventHook

	stripes [conversationStripes]sync.Mutex
}

func NewBroadcaster(registry *session.Registry, store Store, evict func(*session.Session, error)) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		store:    store,
		evict:    evict,
	}
}

// Publish persists a message and delivers it. Save and enqueue for one
// conversation happen under the same lock, so every recipient sees the
// conversation in persisted order. Nothing is delivered if the save fails.
func (b *Broadcaster) Publish(ctx context.Context, conv *model.Conversation, params model.CreateMessageParams) (*model.Message, error) {
	mu := &b.stripes[xxhash.Sum64String(conv.ID)%conversationStripes]
	mu.Lock()
	defer mu.Unlock()

	msg, err := b.store.SaveMessage(ctx, params)
	if err != nil {
		return nil, err
	}
	delivered := b.Deliver(*msg, conv)
	b.events.emit(EventMessageDelivered, map[string]any{
		"chatId":     conv.ID,
		"from":       msg.Username,
		"recipients": delivered,
	})
	return msg, nil
}

// Deliver queues msg on every participant's session and returns how many
// accepted it. A recipient that cannot take the message is evicted; the
// others still receive it.
func (b *Broadcaster) Deliver(msg model.Message, conv *model.Conversation) int {
	line, err := protocol.EncodeJSON(msg)
	if err != nil {
		log.Error().Err(err).Str("chatId", conv.ID).Msg("failed to encode message")
		return 0
	}

	delivered := 0
	for _, s := range b.registry.SessionsFor(conv.Participants) {
		if err := s.Send(line); err != nil {
			log.Warn().
				Err(err).
				Str("sessionId", s.ID).
				Str("username", s.Username()).
				Str("chatId", conv.ID).
				Msg("delivery failed")
			b.evict(s, err)
			continue
		}
		delivered++
	}

	log.Debug().
		Str("chatId", conv.ID).
		Str("from", msg.Username).
		Int("delivered", delivered).
		Msg("message delivered")
	return delivered
}
