package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/audit"
	"github.com/openclaw/chat-relay-go/internal/config"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/protocol"
	"github.com/openclaw/chat-relay-go/internal/service"
	"github.com/openclaw/chat-relay-go/internal/session"
)

// AuthHandler drives a paired session from AwaitingAuth to Authenticated.
// Replies before authentication are written straight to the command
// channel; the outbound queue only starts once the session is promoted.
type AuthHandler struct {
	registry *session.Registry
	store    Store
	limiter  LoginLimiter
	evict    func(*session.Session, error)
	replaced func(*session.Session)

	maxAttempts  int
	rateLimit    int
	authTimeout  time.Duration
	storeTimeout time.Duration
}

// Authenticate consumes LOGIN and REGISTER commands until the session logs
// in, fails too many logins, sends something else, or goes quiet for longer
// than the auth timeout. It reports whether the session is now
// authenticated; on false the session has already been evicted.
func (h *AuthHandler) Authenticate(ctx context.Context, s *session.Session) bool {
	cmd := s.Command()
	failures := 0

	for {
		line, err := cmd.ReadLine(time.Now().Add(h.authTimeout))
		if err != nil {
			h.evict(s, err)
			return false
		}

		frame, err := protocol.Parse(line)
		if err == nil && frame.Verb != protocol.VerbLogin && frame.Verb != protocol.VerbRegister {
			err = apperrors.Protocol("expected LOGIN or REGISTER")
		}
		var creds protocol.Credentials
		if err == nil {
			err = frame.Decode(&creds)
		}
		if err != nil {
			log.Debug().Err(err).Str("sessionId", s.ID).Msg("malformed auth command")
			_ = cmd.WriteLine(protocol.AuthError)
			h.evict(s, err)
			return false
		}

		var done, ok bool
		if frame.Verb == protocol.VerbRegister {
			done = h.register(ctx, s, creds)
		} else {
			done, ok = h.login(ctx, s, creds, &failures)
		}
		if done {
			return ok
		}
	}
}

func (h *AuthHandler) register(ctx context.Context, s *session.Session, creds protocol.Credentials) bool {
	callCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	_, err := h.store.CreateUser(callCtx, creds.Username, creds.Password)
	switch {
	case err == nil:
		audit.Log(audit.Event{Type: audit.EventRegisterSuccess, Username: creds.Username, SessionID: s.ID})
		return h.reply(s, protocol.RegSuccess)
	case apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists), apperrors.HasCode(err, apperrors.ErrCodeInvalidInput):
		audit.Log(audit.Event{
			Type:      audit.EventRegisterFailure,
			Username:  creds.Username,
			SessionID: s.ID,
			Details:   map[string]interface{}{"reason": string(apperrors.GetCode(err))},
		})
		return h.reply(s, protocol.RegFail)
	default:
		log.Error().Err(err).Str("sessionId", s.ID).Msg("failed to register user")
		return h.reply(s, protocol.GenericError)
	}
}

func (h *AuthHandler) login(ctx context.Context, s *session.Session, creds protocol.Credentials, failures *int) (done, ok bool) {
	callCtx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	allowed := true
	if h.limiter != nil {
		allowed, _ = h.limiter.CheckLimit(callCtx, service.LoginKey(creds.Username), h.rateLimit, config.LoginRateLimitWindow)
	}

	var reason *apperrors.AppError
	if allowed {
		verified, err := h.store.VerifyUser(callCtx, creds.Username, creds.Password)
		if err != nil {
			log.Error().Err(err).Str("sessionId", s.ID).Msg("failed to verify user")
			return h.reply(s, protocol.GenericError), false
		}
		if !verified {
			reason = apperrors.AuthFailed()
		}
	} else {
		reason = apperrors.RateLimitExceeded()
		audit.Log(audit.Event{
			Type:      audit.EventLoginLocked,
			Username:  creds.Username,
			SessionID: s.ID,
			Details:   map[string]interface{}{"reason": string(reason.Code)},
		})
	}

	if reason != nil {
		*failures++
		log.Debug().Err(reason).Str("sessionId", s.ID).Int("attempt", *failures).Msg("login rejected")
		audit.Log(audit.Event{
			Type:      audit.EventLoginFailure,
			Username:  creds.Username,
			SessionID: s.ID,
			Details: map[string]interface{}{
				"attempt": *failures,
				"reason":  string(reason.Code),
			},
		})
		if *failures >= h.maxAttempts {
			_ = s.Command().WriteLine(protocol.AuthFail)
			audit.Log(audit.Event{Type: audit.EventLoginLocked, Username: creds.Username, SessionID: s.ID})
			h.evict(s, apperrors.TooManyAttempts())
			return true, false
		}
		return h.reply(s, protocol.AuthFail), false
	}

	prior, err := h.registry.Promote(s, creds.Username)
	if err != nil {
		h.evict(s, err)
		return true, false
	}
	if prior != nil {
		h.replaced(prior)
	}

	audit.Log(audit.Event{Type: audit.EventLoginSuccess, Username: creds.Username, SessionID: s.ID})
	log.Info().Str("sessionId", s.ID).Str("username", creds.Username).Msg("session authenticated")

	if err := s.Command().WriteLine(protocol.AuthSuccess); err != nil {
		h.evict(s, err)
		return true, false
	}
	return true, true
}

// reply writes a pre-auth reply and reports whether the session is done,
// which only happens when the write fails.
func (h *AuthHandler) reply(s *session.Session, line string) bool {
	if err := s.Command().WriteLine(line); err != nil {
		h.evict(s, err)
		return true
	}
	return false
}
