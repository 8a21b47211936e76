package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/audit"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/protocol"
	"github.com/openclaw/chat-relay-go/internal/session"
)

// Dispatcher serves the command channel of an authenticated session.
// Every reply goes through the session's outbound queue so replies and
// broadcasts reach the client in one order.
type Dispatcher struct {
	store     Store
	broadcast *Broadcaster
	evict     func(*session.Session, error)

	historyLimit int
	storeTimeout time.Duration
}

// Serve reads commands until the channel fails or the client breaks the
// protocol. The session is evicted before Serve returns.
func (d *Dispatcher) Serve(ctx context.Context, s *session.Session) {
	cmd := s.Command()
	for {
		line, err := cmd.ReadLine(time.Time{})
		if err != nil {
			d.evict(s, err)
			return
		}
		if err := d.handle(ctx, s, line); err != nil {
			log.Debug().Err(err).Str("sessionId", s.ID).Msg("closing session after command")
			d.evict(s, err)
			return
		}
	}
}

// handle returns an error only when the session must be closed.
func (d *Dispatcher) handle(ctx context.Context, s *session.Session, line string) error {
	frame, err := protocol.Parse(line)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, d.storeTimeout)
	defer cancel()

	log.Debug().Str("sessionId", s.ID).Str("username", s.Username()).Str("verb", frame.Verb).Msg("command received")

	switch frame.Verb {
	case protocol.VerbCreateChat:
		return d.createChat(callCtx, s, frame)
	case protocol.VerbGetChats:
		return d.getChats(callCtx, s, frame)
	case protocol.VerbGetMessages:
		return d.getMessages(callCtx, s, frame)
	case protocol.VerbMessage:
		return d.message(callCtx, s, frame)
	case protocol.VerbLogin, protocol.VerbRegister:
		return s.Send(protocol.AuthError)
	default:
		return apperrors.Protocol("unknown command " + frame.Verb)
	}
}

func (d *Dispatcher) createChat(ctx context.Context, s *session.Session, frame protocol.Frame) error {
	var req protocol.CreateChatRequest
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if err := d.checkActor(s, req.Creator); err != nil {
		log.Debug().Err(err).Str("sessionId", s.ID).Msg("create chat rejected")
		return s.Send(protocol.ChatError)
	}

	conv, err := d.store.CreateChat(ctx, model.CreateChatParams{
		Creator:  s.Username(),
		Targets:  req.Target.Normalized(),
		IsGroup:  req.IsGroup,
		ChatName: req.ChatName,
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionId", s.ID).Msg("create chat rejected")
		return s.Send(protocol.ChatError)
	}
	return s.Send(protocol.ChatCreatedReply(conv.ID))
}

// getChats lists the session user's chats. An empty payload names the
// session user; naming anyone else is refused.
func (d *Dispatcher) getChats(ctx context.Context, s *session.Session, frame protocol.Frame) error {
	if frame.Payload != "" {
		if err := d.checkActor(s, frame.Payload); err != nil {
			log.Debug().Err(err).Str("sessionId", s.ID).Msg("chat list rejected")
			return s.Send(protocol.GenericError)
		}
	}

	chats, err := d.store.GetUserChats(ctx, s.Username())
	if err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Msg("failed to list chats")
		return s.Send(protocol.GenericError)
	}
	if chats == nil {
		chats = []model.Conversation{}
	}
	return d.sendJSON(s, chats)
}

func (d *Dispatcher) getMessages(ctx context.Context, s *session.Session, frame protocol.Frame) error {
	conv, err := d.participantChat(ctx, s, frame.Payload)
	if err != nil {
		log.Debug().Err(err).Str("sessionId", s.ID).Msg("history request rejected")
		return s.Send(protocol.GenericError)
	}

	msgs, err := d.store.GetChatMessages(ctx, conv.ID, d.historyLimit)
	if err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Str("chatId", conv.ID).Msg("failed to load history")
		return s.Send(protocol.GenericError)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return d.sendJSON(s, msgs)
}

func (d *Dispatcher) message(ctx context.Context, s *session.Session, frame protocol.Frame) error {
	var req protocol.ChatMessageRequest
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if err := d.checkActor(s, req.Username); err != nil {
		log.Debug().Err(err).Str("sessionId", s.ID).Msg("message rejected")
		return s.Send(protocol.MessageError)
	}
	if req.Content == "" {
		return s.Send(protocol.MessageError)
	}

	conv, err := d.participantChat(ctx, s, req.ChatID)
	if err != nil {
		log.Debug().Err(err).Str("sessionId", s.ID).Msg("message rejected")
		return s.Send(protocol.MessageError)
	}

	_, err = d.broadcast.Publish(ctx, conv, model.CreateMessageParams{
		ChatID:   conv.ID,
		Username: s.Username(),
		Content:  req.Content,
	})
	if err != nil {
		log.Warn().Err(err).Str("sessionId", s.ID).Str("chatId", conv.ID).Msg("message not saved")
		return s.Send(protocol.MessageError)
	}
	return nil
}

// participantChat loads a chat the session user belongs to.
func (d *Dispatcher) participantChat(ctx context.Context, s *session.Session, chatID string) (*model.Conversation, error) {
	if chatID == "" {
		return nil, apperrors.MissingRequired("chat_id")
	}
	conv, err := d.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(s.Username()) {
		return nil, apperrors.NotParticipant(chatID)
	}
	return conv, nil
}

// checkActor rejects a payload that names someone other than the session
// user as the actor.
func (d *Dispatcher) checkActor(s *session.Session, claimed string) error {
	if claimed == s.Username() {
		return nil
	}
	audit.Log(audit.Event{
		Type:      audit.EventIdentitySpoof,
		Username:  s.Username(),
		SessionID: s.ID,
		Details:   map[string]interface{}{"claimed": claimed},
	})
	return apperrors.IdentityMismatch(claimed)
}

func (d *Dispatcher) sendJSON(s *session.Session, v any) error {
	line, err := protocol.EncodeJSON(v)
	if err != nil {
		log.Error().Err(err).Str("sessionId", s.ID).Msg("failed to encode reply")
		return s.Send(protocol.GenericError)
	}
	return s.Send(line)
}
