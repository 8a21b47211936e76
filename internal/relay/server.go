package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/chat-relay-go/internal/config"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/session"
)

// Server owns both TCP listeners and every session accepted on them.
type Server struct {
	cfg      *config.Config
	registry *session.Registry
	events   *eventHook

	evictor   *evictor
	broadcast *Broadcaster
	pairing   *PairingService
	monitor   *LivenessMonitor
	auth      *AuthHandler
	dispatch  *Dispatcher

	mu         sync.Mutex
	commandLn  net.Listener
	livenessLn net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewServer wires the relay components. limiter may be nil.
func NewServer(cfg *config.Config, store Store, limiter LoginLimiter) *Server {
	registry := session.NewRegistry(cfg.PairingWindow(), cfg.SendQueueSize)

	s := &Server{
		cfg:      cfg,
		registry: registry,
		events:   &eventHook{},
	}

	s.evictor = &evictor{registry: registry, store: store, events: s.events}
	s.broadcast = NewBroadcaster(registry, store, s.evictor.Evict)
	s.broadcast.events = s.events
	s.evictor.broadcast = s.broadcast

	s.monitor = NewLivenessMonitor(registry, cfg.ProbeInterval(), cfg.ProbeReplyWindow(), s.evictor.Evict)
	s.auth = &AuthHandler{
		registry:     registry,
		store:        store,
		limiter:      limiter,
		evict:        s.evictor.Evict,
		replaced:     s.evictor.Replaced,
		maxAttempts:  cfg.MaxLoginAttempts,
		rateLimit:    cfg.LoginRateLimitPerMin,
		authTimeout:  cfg.AuthTimeout(),
		storeTimeout: config.StoreCallTimeout,
	}
	s.dispatch = &Dispatcher{
		store:        store,
		broadcast:    s.broadcast,
		evict:        s.evictor.Evict,
		historyLimit: cfg.HistoryLimit,
		storeTimeout: config.StoreCallTimeout,
	}
	s.pairing = &PairingService{
		registry:     registry,
		evict:        s.evictor.Evict,
		onBound:      s.runSession,
		window:       cfg.PairingWindow(),
		writeTimeout: cfg.WriteTimeout(),
	}
	return s
}

// SetEventPublisher routes session and delivery events to pub.
func (s *Server) SetEventPublisher(pub EventPublisher) {
	s.events.set(pub)
}

// Start binds the command port and the liveness port. Failing to bind
// either one is fatal to startup.
func (s *Server) Start() error {
	commandLn, err := net.Listen("tcp", s.cfg.CommandAddr())
	if err != nil {
		return fmt.Errorf("listen command port %s: %w", s.cfg.CommandAddr(), err)
	}
	livenessLn, err := net.Listen("tcp", s.cfg.PollAddr())
	if err != nil {
		commandLn.Close()
		return fmt.Errorf("listen liveness port %s: %w", s.cfg.PollAddr(), err)
	}
	return s.Serve(commandLn, livenessLn)
}

// Serve starts accepting on already bound listeners and returns
// immediately.
func (s *Server) Serve(commandLn, livenessLn net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commandLn != nil {
		return apperrors.InvalidState("server already started")
	}
	s.commandLn = commandLn
	s.livenessLn = livenessLn
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(3)
	go s.acceptLoop(livenessLn, "liveness", s.pairing.HandleLiveness)
	go s.acceptLoop(commandLn, "command", s.pairing.HandleCommand)
	go func() {
		defer s.wg.Done()
		s.monitor.Run(s.ctx)
	}()

	log.Info().
		Str("commandAddr", commandLn.Addr().String()).
		Str("livenessAddr", livenessLn.Addr().String()).
		Msg("chat relay listening")
	return nil
}

func (s *Server) CommandAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commandLn.Addr()
}

func (s *Server) LivenessAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.livenessLn.Addr()
}

func (s *Server) acceptLoop(ln net.Listener, name string, handle func(net.Conn)) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Str("listener", name).Msg("accept failed")
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handle(conn)
		}()
	}
}

// runSession runs on the command connection's goroutine once it is paired.
func (s *Server) runSession(sess *session.Session) {
	s.events.emit(EventSessionPaired, map[string]any{"sessionId": sess.ID})

	if !s.auth.Authenticate(s.ctx, sess) {
		return
	}
	s.events.emit(EventSessionAuthenticated, map[string]any{
		"sessionId": sess.ID,
		"username":  sess.Username(),
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := sess.RunWriter(); err != nil {
			s.evictor.Evict(sess, err)
		}
	}()

	s.dispatch.Serve(s.ctx, sess)
}

// ExpirePairings closes pending sessions whose pairing window has elapsed.
func (s *Server) ExpirePairings() int {
	expired := s.registry.ExpirePending()
	for _, sess := range expired {
		s.evictor.teardown(sess, session.PendingPairing, apperrors.PairingTimeout())
	}
	return len(expired)
}

// Kick evicts the authenticated session of username. Callers audit the
// request.
func (s *Server) Kick(username string) bool {
	sess, ok := s.registry.Lookup(username)
	if !ok {
		return false
	}
	s.evictor.Evict(sess, apperrors.SessionKicked())
	return true
}

// KickAll evicts every authenticated session and returns how many went.
func (s *Server) KickAll() int {
	bound := s.registry.Bound()
	n := 0
	for _, sess := range bound {
		if sess.State() != session.Authenticated {
			continue
		}
		s.evictor.Evict(sess, apperrors.SessionKicked())
		n++
	}
	return n
}

func (s *Server) SessionCount() int {
	return s.registry.Len()
}

// Sessions lists every live session.
func (s *Server) Sessions() []session.Info {
	sessions := s.registry.Snapshot()
	out := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Info())
	}
	return out
}

// Shutdown closes both listeners, stops the liveness monitor and evicts
// every session, then waits for connection goroutines and pending
// departure notices to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.commandLn == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.commandLn.Close()
	s.livenessLn.Close()
	s.mu.Unlock()

	s.evictor.stop()
	unpaired := s.pairing.CloseUnpaired()

	sessions := s.registry.Snapshot()
	for _, sess := range sessions {
		s.evictor.Evict(sess, apperrors.ServerShutdown())
	}
	for _, sess := range s.registry.RemoveAll() {
		sess.Close()
	}
	log.Info().
		Int("sessions", len(sessions)).
		Int("unpaired", unpaired).
		Msg("chat relay closing sessions")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.evictor.wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("chat relay stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
