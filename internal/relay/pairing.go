package relay

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/protocol"
	"github.com/openclaw/chat-relay-go/internal/session"
	"github.com/openclaw/chat-relay-go/internal/util"
)

// PairingService joins a client's liveness and command connections into
// one session. The liveness connection arrives first and is issued a
// token; the command connection must present it as its first line within
// the pairing window.
type PairingService struct {
	registry     *session.Registry
	evict        func(*session.Session, error)
	onBound      func(*session.Session)
	window       time.Duration
	writeTimeout time.Duration

	mu       sync.Mutex
	closing  bool
	unpaired map[*session.Channel]struct{}
}

// track records a command channel that has not paired yet. It reports
// false once CloseUnpaired has run.
func (p *PairingService) track(ch *session.Channel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closing {
		return false
	}
	if p.unpaired == nil {
		p.unpaired = make(map[*session.Channel]struct{})
	}
	p.unpaired[ch] = struct{}{}
	return true
}

func (p *PairingService) untrack(ch *session.Channel) {
	p.mu.Lock()
	delete(p.unpaired, ch)
	p.mu.Unlock()
}

// CloseUnpaired closes every command connection still waiting for its
// pairing line and refuses new ones.
func (p *PairingService) CloseUnpaired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closing = true
	n := len(p.unpaired)
	for ch := range p.unpaired {
		ch.Close()
	}
	p.unpaired = nil
	return n
}

// HandleLiveness owns an accepted liveness connection for its lifetime.
func (p *PairingService) HandleLiveness(conn net.Conn) {
	ch := session.NewChannel(conn, p.writeTimeout)

	s, err := p.registry.CreatePending(ch)
	if err != nil {
		log.Error().Err(err).Str("remoteAddr", ch.RemoteAddr()).Msg("failed to create pending session")
		ch.Close()
		return
	}
	log.Debug().
		Str("sessionId", s.ID).
		Str("token", util.MaskToken(s.Token())).
		Str("remoteAddr", ch.RemoteAddr()).
		Msg("pending session created")

	if err := ch.WriteLine(protocol.TokenAnnouncement(s.Token())); err != nil {
		p.evict(s, err)
		return
	}

	readLiveness(s, p.evict)
}

// HandleCommand waits up to the pairing window for this connection's
// AUTH line. Partial lines keep being read from the same connection until
// the line completes or the window closes.
func (p *PairingService) HandleCommand(conn net.Conn) {
	ch := session.NewChannel(conn, p.writeTimeout)
	if !p.track(ch) {
		ch.Close()
		return
	}

	s, ok := p.pair(ch)
	p.untrack(ch)
	if !ok {
		ch.Close()
		return
	}

	log.Info().
		Str("sessionId", s.ID).
		Str("commandAddr", ch.RemoteAddr()).
		Str("livenessAddr", s.Liveness().RemoteAddr()).
		Msg("session paired")

	p.onBound(s)
}

func (p *PairingService) pair(ch *session.Channel) (*session.Session, bool) {
	line, err := ch.ReadLine(time.Now().Add(p.window))
	if err != nil {
		log.Debug().Err(err).Str("remoteAddr", ch.RemoteAddr()).Msg("no pairing line")
		return nil, false
	}

	frame, err := protocol.Parse(line)
	if err != nil || frame.Verb != protocol.VerbAuth || frame.Payload == "" {
		log.Debug().Str("remoteAddr", ch.RemoteAddr()).Msg("malformed pairing line")
		return nil, false
	}

	s, err := p.registry.BindCommandChannel(frame.Payload, ch)
	if err != nil {
		log.Debug().
			Err(err).
			Str("token", util.MaskToken(frame.Payload)).
			Str("remoteAddr", ch.RemoteAddr()).
			Msg("pairing rejected")
		return nil, false
	}
	return s, true
}
