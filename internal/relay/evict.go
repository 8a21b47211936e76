package relay

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/audit"
	"github.com/openclaw/chat-relay-go/internal/config"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/session"
)

// evictor is the single teardown path for sessions: remove from the
// registry, close both channels, and tell the user's conversations when an
// authenticated user goes away.
type evictor struct {
	registry  *session.Registry
	store     Store
	broadcast *Broadcaster
	events    *eventHook

	mu         sync.Mutex
	closing    bool
	departures sync.WaitGroup
}

func (e *evictor) Evict(s *session.Session, reason error) {
	prev := e.registry.Remove(s)
	if prev == session.Closed {
		return
	}
	e.teardown(s, prev, reason)
}

// teardown closes a session already taken out of the registry while in
// state prev.
func (e *evictor) teardown(s *session.Session, prev session.State, reason error) {
	s.Close()

	username := s.Username()
	log.Info().
		Str("sessionId", s.ID).
		Str("username", username).
		Str("state", prev.String()).
		Str("reason", string(apperrors.GetCode(reason))).
		Err(reason).
		Msg("session evicted")
	e.events.emit(EventSessionEvicted, map[string]any{
		"sessionId": s.ID,
		"username":  username,
		"state":     prev.String(),
		"reason":    string(apperrors.GetCode(reason)),
	})

	if prev == session.Authenticated {
		e.goDepart(username)
	}
}

func (e *evictor) goDepart(username string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closing {
		return
	}
	e.departures.Add(1)
	go func() {
		defer e.departures.Done()
		e.announceDeparture(username)
	}()
}

// stop suppresses departure notices from now on. Notices already running
// are awaited with wait.
func (e *evictor) stop() {
	e.mu.Lock()
	e.closing = true
	e.mu.Unlock()
}

func (e *evictor) wait() {
	e.departures.Wait()
}

// Replaced closes a session the registry already dropped in favour of a
// newer login by the same user. The user has not left, so no departure
// notice is sent.
func (e *evictor) Replaced(s *session.Session) {
	s.Close()
	reason := apperrors.SessionReplaced()
	audit.Log(audit.Event{
		Type:      audit.EventSessionReplaced,
		Username:  s.Username(),
		SessionID: s.ID,
		Details:   map[string]interface{}{"reason": string(reason.Code)},
	})
	log.Info().
		Str("sessionId", s.ID).
		Str("username", s.Username()).
		Err(reason).
		Msg("session replaced by newer login")
	e.events.emit(EventSessionEvicted, map[string]any{
		"sessionId": s.ID,
		"username":  s.Username(),
		"state":     session.Authenticated.String(),
		"reason":    string(reason.Code),
	})
}

func (e *evictor) announceDeparture(username string) {
	ctx, cancel := context.WithTimeout(context.Background(), config.StoreCallTimeout)
	defer cancel()

	chats, err := e.store.GetUserChats(ctx, username)
	if err != nil {
		log.Warn().Err(err).Str("username", username).Msg("failed to load chats for departure notice")
		return
	}

	at := time.Now().UTC()
	for i := range chats {
		conv := chats[i]
		conv.Participants = without(conv.Participants, username)
		e.broadcast.Deliver(model.DepartureNotice(conv.ID, username, at), &conv)
	}
}

func without(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
