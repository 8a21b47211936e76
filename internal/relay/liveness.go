package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/protocol"
	"github.com/openclaw/chat-relay-go/internal/session"
)

// LivenessMonitor probes every paired session on a fixed period. Each cycle
// sends KEEP_ALIVE to all of them, waits the reply window, then evicts the
// ones with no ALIVE since the probe went out. Replies are recorded by the
// per-session liveness reader, so neither pass ever blocks on a client.
type LivenessMonitor struct {
	registry    *session.Registry
	evict       func(*session.Session, error)
	interval    time.Duration
	replyWindow time.Duration
}

func NewLivenessMonitor(registry *session.Registry, interval, replyWindow time.Duration, evict func(*session.Session, error)) *LivenessMonitor {
	return &LivenessMonitor{
		registry:    registry,
		evict:       evict,
		interval:    interval,
		replyWindow: replyWindow,
	}
}

func (m *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", m.interval).
		Dur("replyWindow", m.replyWindow).
		Msg("liveness monitor started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("liveness monitor stopped")
			return
		case <-ticker.C:
			m.cycle(ctx)
		}
	}
}

func (m *LivenessMonitor) cycle(ctx context.Context) {
	sessions := m.registry.Bound()
	if len(sessions) == 0 {
		return
	}

	probeAt := time.Now()
	m.probe(sessions)

	timer := time.NewTimer(m.replyWindow)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	m.check(sessions, probeAt)
}

// probe writes KEEP_ALIVE on every liveness channel concurrently. Each
// write is bounded by the channel's write deadline.
func (m *LivenessMonitor) probe(sessions []*session.Session) {
	for _, s := range sessions {
		go func(s *session.Session) {
			if err := s.Liveness().WriteLine(protocol.KeepAlive); err != nil {
				m.evict(s, err)
			}
		}(s)
	}
}

func (m *LivenessMonitor) check(sessions []*session.Session, probeAt time.Time) {
	for _, s := range sessions {
		if s.State() == session.Closed {
			continue
		}
		if !s.SeenSince(probeAt) {
			m.evict(s, apperrors.LivenessTimeout())
		}
	}
}

// readLiveness records ALIVE replies for s until its liveness channel
// fails, then evicts s.
func readLiveness(s *session.Session, evict func(*session.Session, error)) {
	ch := s.Liveness()
	for {
		line, err := ch.ReadLine(time.Time{})
		if err != nil {
			evict(s, err)
			return
		}
		if line == protocol.Alive {
			s.Touch(time.Now())
			continue
		}
		log.Debug().Str("sessionId", s.ID).Str("line", line).Msg("unexpected liveness line")
	}
}
