package session

import (
	"sync"
	"time"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/util"
)

// Registry indexes live sessions by pairing token while they are pending and
// by username once authenticated. Every mutation runs under one mutex and
// none of them perform channel I/O.
type Registry struct {
	pairingWindow time.Duration
	queueSize     int
	now           func() time.Time

	mu      sync.Mutex
	pending map[string]*Session
	byUser  map[string]*Session
	live    map[string]*Session
}

func NewRegistry(pairingWindow time.Duration, queueSize int) *Registry {
	return &Registry{
		pairingWindow: pairingWindow,
		queueSize:     queueSize,
		now:           time.Now,
		pending:       make(map[string]*Session),
		byUser:        make(map[string]*Session),
		live:          make(map[string]*Session),
	}
}

// CreatePending allocates a fresh token and a PendingPairing session that
// owns the given liveness channel.
func (r *Registry) CreatePending(liveness *Channel) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var token string
	for {
		t, err := util.GenerateToken()
		if err != nil {
			return nil, apperrors.Internal("generate pairing token").WithCause(err)
		}
		if _, taken := r.pending[t]; !taken {
			token = t
			break
		}
	}

	s := newSession(token, liveness, r.queueSize, r.now())
	r.pending[token] = s
	r.live[s.ID] = s
	return s, nil
}

// BindCommandChannel attaches cmd to the pending session holding token and
// moves it to AwaitingAuth. The token is consumed: any later bind with it
// fails, as does a bind after the pairing window.
func (r *Registry) BindCommandChannel(token string, cmd *Channel) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.pending[token]
	if !ok || r.expired(s) {
		return nil, apperrors.UnknownToken()
	}
	delete(r.pending, token)

	s.mu.Lock()
	s.command = cmd
	s.state = AwaitingAuth
	s.mu.Unlock()
	return s, nil
}

// Promote authenticates s as username. A session already indexed under
// username is removed from the registry and returned so the caller can
// close it; only one authenticated session per user exists at a time.
func (r *Registry) Promote(s *Session, username string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.State() != AwaitingAuth {
		return nil, apperrors.InvalidState("session is not awaiting authentication")
	}

	prior := r.byUser[username]
	if prior == s {
		prior = nil
	}
	if prior != nil {
		r.removeLocked(prior)
	}

	s.mu.Lock()
	s.username = username
	s.state = Authenticated
	s.mu.Unlock()
	r.byUser[username] = s
	return prior, nil
}

// Remove drops every index entry for s and marks it Closed. It returns the
// state s had before the call; removing a closed session is a no-op that
// returns Closed.
func (r *Registry) Remove(s *Session) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(s)
}

func (r *Registry) removeLocked(s *Session) State {
	s.mu.Lock()
	prev := s.state
	s.state = Closed
	username := s.username
	s.mu.Unlock()

	if prev == Closed {
		return Closed
	}

	delete(r.live, s.ID)
	if r.pending[s.token] == s {
		delete(r.pending, s.token)
	}
	if username != "" && r.byUser[username] == s {
		delete(r.byUser, username)
	}
	return prev
}

// SessionsFor returns the authenticated sessions of the given users.
func (r *Registry) SessionsFor(usernames []string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(usernames))
	for _, name := range usernames {
		if s, ok := r.byUser[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Lookup returns the authenticated session of username, if any.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[username]
	return s, ok
}

// Bound returns every session that has both channels: AwaitingAuth and
// Authenticated.
func (r *Registry) Bound() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		if s.State() != PendingPairing {
			out = append(out, s)
		}
	}
	return out
}

// Snapshot returns every live session.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// ExpirePending removes pending sessions whose pairing window has elapsed
// and returns them for closing.
func (r *Registry) ExpirePending() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []*Session
	for _, s := range r.pending {
		if r.expired(s) {
			r.removeLocked(s)
			expired = append(expired, s)
		}
	}
	return expired
}

// RemoveAll empties the registry and returns the sessions it held.
func (r *Registry) RemoveAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.live))
	for _, s := range r.live {
		r.removeLocked(s)
		out = append(out, s)
	}
	return out
}

func (r *Registry) expired(s *Session) bool {
	return r.now().Sub(s.CreatedAt) > r.pairingWindow
}
