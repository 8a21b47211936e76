package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
)

type State int32

const (
	PendingPairing State = iota
	AwaitingAuth
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case PendingPairing:
		return "pending_pairing"
	case AwaitingAuth:
		return "awaiting_auth"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one connected client: a liveness channel, a command channel
// once paired, and a username once authenticated. State and username are
// written by the Registry while it holds its lock.
type Session struct {
	ID        string
	CreatedAt time.Time

	token    string
	liveness *Channel

	mu       sync.RWMutex
	state    State
	command  *Channel
	username string

	lastSeen atomic.Int64

	outbound  chan string
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(token string, liveness *Channel, queueSize int, now time.Time) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		token:     token,
		liveness:  liveness,
		state:     PendingPairing,
		outbound:  make(chan string, queueSize),
		done:      make(chan struct{}),
	}
	s.lastSeen.Store(now.UnixNano())
	return s
}

// Token is the pairing token issued for this session.
func (s *Session) Token() string {
	return s.token
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) Liveness() *Channel {
	return s.liveness
}

// Command returns the command channel, or nil before pairing.
func (s *Session) Command() *Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.command
}

// Touch records a liveness reply.
func (s *Session) Touch(at time.Time) {
	s.lastSeen.Store(at.UnixNano())
}

func (s *Session) LastSeenAt() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// SeenSince reports whether a liveness reply arrived at or after t.
func (s *Session) SeenSince(t time.Time) bool {
	return s.lastSeen.Load() >= t.UnixNano()
}

// Send queues a line for the command channel without blocking. A full
// queue or a closed session is a delivery failure.
func (s *Session) Send(line string) error {
	select {
	case <-s.done:
		return apperrors.ChannelClosed(nil)
	default:
	}

	select {
	case s.outbound <- line:
		return nil
	case <-s.done:
		return apperrors.ChannelClosed(nil)
	default:
		return apperrors.SendQueueFull()
	}
}

// RunWriter drains the outbound queue onto the command channel, one line at
// a time, until the session is closed or a write fails. It returns the
// write error, or nil when the session was closed.
func (s *Session) RunWriter() error {
	cmd := s.Command()
	if cmd == nil {
		return apperrors.InvalidState("session has no command channel")
	}

	for {
		select {
		case <-s.done:
			return nil
		case line := <-s.outbound:
			if err := cmd.WriteLine(line); err != nil {
				return err
			}
		}
	}
}

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes both channels and stops the writer. It does not touch the
// Registry; callers remove the session first.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.liveness.Close()
		if cmd := s.Command(); cmd != nil {
			cmd.Close()
		}
	})
}

// Info is a point-in-time view of a session for monitoring.
type Info struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	State        string    `json:"state"`
	LivenessAddr string    `json:"liveness_addr"`
	CommandAddr  string    `json:"command_addr,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		ID:           s.ID,
		Username:     s.username,
		State:        s.state.String(),
		LivenessAddr: s.liveness.RemoteAddr(),
		CreatedAt:    s.CreatedAt,
		LastSeenAt:   s.LastSeenAt(),
	}
	if s.command != nil {
		info.CommandAddr = s.command.RemoteAddr()
	}
	return info
}
