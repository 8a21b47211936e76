package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/chat-relay-go/internal/config"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
	"github.com/openclaw/chat-relay-go/internal/model"
	"github.com/openclaw/chat-relay-go/internal/protocol"
	"github.com/openclaw/chat-relay-go/internal/session"
)

func TestServer_Start(t *testing.T) {
	t.Run("fails when the liveness port is taken", func(t *testing.T) {
		taken, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer taken.Close()

		port := taken.Addr().(*net.TCPAddr).Port
		cfg := testConfig()
		cfg.Port = port - 1

		srv := NewServer(cfg, newFakeStore(), nil)
		err = srv.Start()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listen")
	})

	t.Run("serves only once", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())
		a, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		defer a.Close()
		assert.Error(t, srv.Serve(a, a))
	})
}

func TestPairing(t *testing.T) {
	t.Run("token binds the command connection", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)

		c := dialClient(t, srv)
		assert.Len(t, c.token, 32)

		require.Eventually(t, func() bool {
			return len(srv.registry.Bound()) == 1
		}, ioTimeout, 10*time.Millisecond)
		assert.Equal(t, session.AwaitingAuth, srv.registry.Bound()[0].State())
	})

	t.Run("token is accepted only once", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())

		c := dialClient(t, srv)
		require.Eventually(t, func() bool {
			return len(srv.registry.Bound()) == 1
		}, ioTimeout, 10*time.Millisecond)

		thief := &testClient{t: t}
		thief.pair(srv, c.token)
		thief.expectClosed()
		assert.Len(t, srv.registry.Bound(), 1)
	})

	t.Run("unknown token closes the command connection", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())

		c := &testClient{t: t}
		c.pair(srv, "deadbeef")
		c.expectClosed()
	})

	t.Run("non AUTH first line closes the command connection", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())
		c := dialUnpaired(t, srv)

		conn, err := net.Dial("tcp", srv.CommandAddr().String())
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write([]byte("LOGIN:{}\n"))
		require.NoError(t, err)

		buf := make([]byte, 1)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(ioTimeout)))
		_, err = conn.Read(buf)
		require.Error(t, err)
		assert.False(t, isTimeout(err))
		assert.Empty(t, srv.registry.Bound())

		// The token is still good for a proper command connection.
		c.pair(srv, c.token)
		require.Eventually(t, func() bool {
			return len(srv.registry.Bound()) == 1
		}, ioTimeout, 10*time.Millisecond)
	})

	t.Run("slow AUTH line on the same connection still pairs", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())
		c := dialUnpaired(t, srv)

		conn, err := net.Dial("tcp", srv.CommandAddr().String())
		require.NoError(t, err)
		defer conn.Close()

		line := "AUTH:" + c.token + "\n"
		half := len(line) / 2
		_, err = conn.Write([]byte(line[:half]))
		require.NoError(t, err)
		time.Sleep(200 * time.Millisecond)
		_, err = conn.Write([]byte(line[half:]))
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(srv.registry.Bound()) == 1
		}, ioTimeout, 10*time.Millisecond)
	})

	t.Run("silent command connection is closed after the window", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())

		conn, err := net.Dial("tcp", srv.CommandAddr().String())
		require.NoError(t, err)
		defer conn.Close()

		start := time.Now()
		buf := make([]byte, 1)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, err = conn.Read(buf)
		require.Error(t, err)
		assert.False(t, isTimeout(err))
		assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	})

	t.Run("unpaired liveness connection expires", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())
		pub := &recordingPublisher{}
		srv.SetEventPublisher(pub)
		c := dialUnpaired(t, srv)

		assert.Equal(t, 0, srv.ExpirePairings())
		time.Sleep(1100 * time.Millisecond)
		assert.Equal(t, 1, srv.ExpirePairings())
		assert.True(t, pub.has(EventSessionEvicted, "reason", string(apperrors.ErrCodePairingTimeout)))
		assert.True(t, pub.has(EventSessionEvicted, "state", session.PendingPairing.String()))
		c.expectLivenessClosed()
		assert.Equal(t, 0, srv.registry.Len())

		late := &testClient{t: t}
		late.pair(srv, c.token)
		late.expectClosed()
	})
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func TestAuthentication(t *testing.T) {
	t.Run("register and login scenario", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)

		c := dialClient(t, srv)
		c.sendJSON(protocol.VerbRegister, protocol.Credentials{Username: "alice", Password: "pw1"})
		assert.Equal(t, protocol.RegSuccess, c.expect())

		c.sendJSON(protocol.VerbRegister, protocol.Credentials{Username: "alice", Password: "other"})
		assert.Equal(t, protocol.RegFail, c.expect())

		c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "pw1"})
		assert.Equal(t, protocol.AuthSuccess, c.expect())

		other := dialClient(t, srv)
		other.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "wrong"})
		assert.Equal(t, protocol.AuthFail, other.expect())

		s, ok := srv.registry.Lookup("alice")
		require.True(t, ok)
		assert.Equal(t, session.Authenticated, s.State())
	})

	t.Run("register does not authenticate", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())

		c := dialClient(t, srv)
		c.sendJSON(protocol.VerbRegister, protocol.Credentials{Username: "bob", Password: "pw"})
		require.Equal(t, protocol.RegSuccess, c.expect())

		_, ok := srv.registry.Lookup("bob")
		assert.False(t, ok)

		c.send("GET_CHATS:bob")
		assert.Equal(t, protocol.AuthError, c.expect())
		c.expectClosed()
	})

	t.Run("failed logins are bounded", func(t *testing.T) {
		store := newFakeStore()
		store.addUser("alice", "pw1")
		srv := newTestServer(t, store)

		c := dialClient(t, srv)
		for i := 0; i < 2; i++ {
			c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "wrong"})
			require.Equal(t, protocol.AuthFail, c.expect())
		}
		c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "wrong"})
		assert.Equal(t, protocol.AuthFail, c.expect())
		c.expectClosed()
		c.expectLivenessClosed()
	})

	t.Run("retry after failure succeeds within the limit", func(t *testing.T) {
		store := newFakeStore()
		store.addUser("alice", "pw1")
		srv := newTestServer(t, store)

		c := dialClient(t, srv)
		c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "wrong"})
		require.Equal(t, protocol.AuthFail, c.expect())
		c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "pw1"})
		assert.Equal(t, protocol.AuthSuccess, c.expect())
	})

	t.Run("malformed JSON is an error and closes", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore())

		c := dialClient(t, srv)
		c.send("LOGIN:{not json")
		assert.Equal(t, protocol.AuthError, c.expect())
		c.expectClosed()
		c.expectLivenessClosed()
	})

	t.Run("rate limiter blocks verification", func(t *testing.T) {
		store := newFakeStore()
		store.addUser("alice", "pw1")

		cfg := testConfig()
		commandLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		livenessLn, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		srv := NewServer(cfg, store, denyAll{})
		require.NoError(t, srv.Serve(commandLn, livenessLn))
		defer srv.Shutdown(context.Background())

		c := dialClient(t, srv)
		c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "alice", Password: "pw1"})
		assert.Equal(t, protocol.AuthFail, c.expect())
	})

	t.Run("second login replaces the first session", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		pub := &recordingPublisher{}
		srv.SetEventPublisher(pub)

		first := login(t, srv, store, "alice")
		firstSession, ok := srv.registry.Lookup("alice")
		require.True(t, ok)

		second := login(t, srv, store, "alice")
		first.expectClosed()
		first.expectLivenessClosed()

		s, ok := srv.registry.Lookup("alice")
		require.True(t, ok)
		assert.NotSame(t, firstSession, s)
		assert.Len(t, srv.registry.SessionsFor([]string{"alice"}), 1)
		assert.Equal(t, 0, store.chatLookups("alice"), "replacement is not a departure")
		assert.True(t, pub.has(EventSessionEvicted, "reason", string(apperrors.ErrCodeSessionReplaced)))

		second.send("GET_CHATS:alice")
		assert.Equal(t, "[]", second.expect())
	})
}

type denyAll struct{}

func (denyAll) CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	return false, time.Now().Add(window)
}

func createChat(t *testing.T, c *testClient, creator string, target any, isGroup bool) string {
	t.Helper()
	c.sendJSON(protocol.VerbCreateChat, map[string]any{
		"target":   target,
		"is_group": isGroup,
		"creator":  creator,
	})
	reply := c.expect()
	require.True(t, strings.HasPrefix(reply, protocol.ChatCreated+":"), "reply %q", reply)
	return strings.TrimPrefix(reply, protocol.ChatCreated+":")
}

func sendMessage(c *testClient, chatID, username, content string) {
	c.sendJSON(protocol.VerbMessage, protocol.ChatMessageRequest{ChatID: chatID, Username: username, Content: content})
}

func TestCommands(t *testing.T) {
	t.Run("create chat then list it", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		store.addUser("b", "pw")
		a := login(t, srv, store, "a")

		chatID := createChat(t, a, "a", "b", false)

		a.send("GET_CHATS:a")
		var chats []model.Conversation
		a.expectJSON(&chats)
		require.Len(t, chats, 1)
		assert.Equal(t, chatID, chats[0].ID)
		assert.Contains(t, chats[0].Participants, "b")
		assert.Equal(t, "a-b", chats[0].ChatName)
		assert.False(t, chats[0].IsGroup)

		a.send(protocol.VerbGetChats)
		a.expectJSON(&chats)
		assert.Len(t, chats, 1)
	})

	t.Run("group chat with a target list", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		store.addUser("b", "pw")
		store.addUser("c", "pw")
		a := login(t, srv, store, "a")

		chatID := createChat(t, a, "a", []string{"b", "c"}, true)
		conv, err := store.GetChat(context.Background(), chatID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, conv.Participants)
		assert.True(t, conv.IsGroup)
	})

	t.Run("create chat rejections", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		store.addUser("b", "pw")
		a := login(t, srv, store, "a")

		a.sendJSON(protocol.VerbCreateChat, map[string]any{"target": "b", "is_group": false, "creator": "b"})
		assert.Equal(t, protocol.ChatError, a.expect())

		a.sendJSON(protocol.VerbCreateChat, map[string]any{"target": "nobody", "is_group": false, "creator": "a"})
		assert.Equal(t, protocol.ChatError, a.expect())

		a.send("GET_CHATS:a")
		assert.Equal(t, "[]", a.expect())
	})

	t.Run("listing another user's chats is refused", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		a := login(t, srv, store, "a")

		a.send("GET_CHATS:b")
		assert.Equal(t, protocol.GenericError, a.expect())
	})

	t.Run("history is oldest first and participant only", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		store.addUser("b", "pw")
		a := login(t, srv, store, "a")
		carol := login(t, srv, store, "carol")

		chatID := createChat(t, a, "a", "b", false)
		for i := 0; i < 3; i++ {
			sendMessage(a, chatID, "a", fmt.Sprintf("m%d", i))
			a.expect()
		}

		a.send("GET_MESSAGES:" + chatID)
		var msgs []model.Message
		a.expectJSON(&msgs)
		require.Len(t, msgs, 3)
		for i, m := range msgs {
			assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
			assert.Equal(t, chatID, m.ChatID)
			assert.Equal(t, "a", m.Username)
		}

		carol.send("GET_MESSAGES:" + chatID)
		assert.Equal(t, protocol.GenericError, carol.expect())

		a.send("GET_MESSAGES:missing")
		assert.Equal(t, protocol.GenericError, a.expect())
	})

	t.Run("login on an authenticated session is refused but keeps it open", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		a := login(t, srv, store, "a")

		a.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: "a", Password: "pw-a"})
		assert.Equal(t, protocol.AuthError, a.expect())

		a.send("GET_CHATS:a")
		assert.Equal(t, "[]", a.expect())
	})

	t.Run("unknown command closes the session", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		a := login(t, srv, store, "a")

		a.send("DANCE:now")
		a.expectClosed()
		a.expectLivenessClosed()
		_, ok := srv.registry.Lookup("a")
		assert.False(t, ok)
	})

	t.Run("malformed MESSAGE closes the session", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		a := login(t, srv, store, "a")

		a.send("MESSAGE:{oops")
		a.expectClosed()
	})
}

func TestMessaging(t *testing.T) {
	t.Run("message reaches participants only", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")
		carol := login(t, srv, store, "carol")

		chatID := createChat(t, alice, "alice", "bob", false)
		sendMessage(alice, chatID, "alice", "hi")

		var got model.Message
		bob.expectJSON(&got)
		assert.Equal(t, "alice", got.Username)
		assert.Equal(t, "hi", got.Content)
		assert.Equal(t, chatID, got.ChatID)
		assert.NotEmpty(t, got.ID)

		var echo model.Message
		alice.expectJSON(&echo)
		assert.Equal(t, got.ID, echo.ID)

		carol.expectNothing(200 * time.Millisecond)
		require.Len(t, store.saved(chatID), 1)
	})

	t.Run("non participant is rejected without side effects", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")
		carol := login(t, srv, store, "carol")

		chatID := createChat(t, alice, "alice", "bob", false)
		sendMessage(carol, chatID, "carol", "let me in")

		assert.Equal(t, protocol.MessageError, carol.expect())
		assert.Empty(t, store.saved(chatID))
		alice.expectNothing(200 * time.Millisecond)
		bob.expectNothing(50 * time.Millisecond)
	})

	t.Run("spoofed author is rejected", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")

		chatID := createChat(t, alice, "alice", "bob", false)
		sendMessage(alice, chatID, "bob", "I am bob")

		assert.Equal(t, protocol.MessageError, alice.expect())
		assert.Empty(t, store.saved(chatID))
		bob.expectNothing(200 * time.Millisecond)
	})

	t.Run("failed save is not broadcast", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")

		chatID := createChat(t, alice, "alice", "bob", false)
		store.setSaveErr(errors.New("disk full"))
		sendMessage(alice, chatID, "alice", "lost")

		assert.Equal(t, protocol.MessageError, alice.expect())
		bob.expectNothing(200 * time.Millisecond)
	})

	t.Run("messages keep persisted order per conversation", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")
		carol := login(t, srv, store, "carol")

		groupID := createChat(t, alice, "alice", []string{"bob", "carol"}, true)

		const perSender = 20
		done := make(chan error, 2)
		for _, sender := range []struct {
			c    *testClient
			name string
		}{{alice, "alice"}, {carol, "carol"}} {
			go func(c *testClient, name string) {
				for i := 0; i < perSender; i++ {
					err := c.writeJSON(protocol.VerbMessage, protocol.ChatMessageRequest{
						ChatID: groupID, Username: name, Content: fmt.Sprintf("%s-%d", name, i),
					})
					if err != nil {
						done <- err
						return
					}
				}
				done <- nil
			}(sender.c, sender.name)
		}
		require.NoError(t, <-done)
		require.NoError(t, <-done)

		received := make([]string, 0, 2*perSender)
		for i := 0; i < 2*perSender; i++ {
			var m model.Message
			bob.expectJSON(&m)
			received = append(received, m.ID)
		}

		saved := store.saved(groupID)
		require.Len(t, saved, 2*perSender)
		persisted := make([]string, len(saved))
		for i, m := range saved {
			persisted[i] = m.ID
		}
		assert.Equal(t, persisted, received)
	})
}

func TestLiveness(t *testing.T) {
	t.Run("silent client is evicted and its chats are told", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")

		chatID := createChat(t, alice, "alice", "bob", false)
		aliceSession, ok := srv.registry.Lookup("alice")
		require.True(t, ok)

		alice.mute.Store(true)

		require.Eventually(t, func() bool {
			return aliceSession.State() == session.Closed
		}, time.Second, 10*time.Millisecond)
		_, ok = srv.registry.Lookup("alice")
		assert.False(t, ok)

		alice.expectClosed()
		alice.expectLivenessClosed()

		var notice model.Message
		bob.expectJSON(&notice)
		assert.Equal(t, model.SystemAuthor, notice.Username)
		assert.Equal(t, "alice left the chat!", notice.Content)
		assert.Equal(t, chatID, notice.ChatID)
		assert.Empty(t, store.saved(chatID))

		_, ok = srv.registry.Lookup("bob")
		assert.True(t, ok)
	})

	t.Run("answering client survives several cycles", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")

		time.Sleep(500 * time.Millisecond)
		_, ok := srv.registry.Lookup("alice")
		require.True(t, ok)

		alice.send("GET_CHATS:alice")
		assert.Equal(t, "[]", alice.expect())
	})

	t.Run("closed liveness connection evicts", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store, func(cfg *config.Config) {
			cfg.ProbeIntervalMs = 10000
		})
		alice := login(t, srv, store, "alice")

		alice.liveness.Close()
		alice.expectClosed()
		require.Eventually(t, func() bool {
			_, ok := srv.registry.Lookup("alice")
			return !ok
		}, ioTimeout, 10*time.Millisecond)
	})

	t.Run("closed command connection evicts", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		alice := login(t, srv, store, "alice")

		alice.command.Close()
		alice.expectLivenessClosed()
		assert.Equal(t, 0, srv.registry.Len())
	})
}

func TestServer_KickAndShutdown(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	alice := login(t, srv, store, "alice")
	bob := login(t, srv, store, "bob")

	assert.False(t, srv.Kick("nobody"))
	assert.True(t, srv.Kick("alice"))
	alice.expectClosed()
	alice.expectLivenessClosed()

	infos := srv.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "bob", infos[0].Username)
	assert.Equal(t, "authenticated", infos[0].State)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	bob.expectClosed()
	bob.expectLivenessClosed()
	assert.Equal(t, 0, srv.SessionCount())

	_, err := net.DialTimeout("tcp", srv.CommandAddr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}

func TestServer_KickAll(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store)
	alice := login(t, srv, store, "alice")
	bob := login(t, srv, store, "bob")
	pending := dialUnpaired(t, srv)
	require.Equal(t, 3, srv.SessionCount())

	assert.Equal(t, 2, srv.KickAll())
	alice.expectClosed()
	bob.expectClosed()
	assert.Equal(t, 1, srv.SessionCount())

	require.Eventually(t, func() bool {
		return store.chatLookups("alice") == 1 && store.chatLookups("bob") == 1
	}, time.Second, 10*time.Millisecond)

	select {
	case <-pending.liveDone:
		t.Fatal("pending session was kicked")
	default:
	}
}

func unpairedCommands(srv *Server) int {
	srv.pairing.mu.Lock()
	defer srv.pairing.mu.Unlock()
	return len(srv.pairing.unpaired)
}

func TestServer_Shutdown(t *testing.T) {
	t.Run("closes command connections still waiting to pair", func(t *testing.T) {
		srv := newTestServer(t, newFakeStore(), func(cfg *config.Config) {
			cfg.PairingWindowSeconds = 5
		})

		conn, err := net.Dial("tcp", srv.CommandAddr().String())
		require.NoError(t, err)
		defer conn.Close()
		require.Eventually(t, func() bool {
			return unpairedCommands(srv) == 1
		}, time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(ioTimeout)))
		_, err = conn.Read(make([]byte, 1))
		require.Error(t, err)
		assert.False(t, isTimeout(err), "command connection still open")
		assert.Equal(t, 0, unpairedCommands(srv))
	})

	t.Run("evicts sessions without departure notices", func(t *testing.T) {
		store := newFakeStore()
		srv := newTestServer(t, store)
		pub := &recordingPublisher{}
		srv.SetEventPublisher(pub)
		alice := login(t, srv, store, "alice")
		bob := login(t, srv, store, "bob")
		createChat(t, alice, "alice", "bob", false)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx))

		alice.expectClosed()
		bob.expectClosed()
		assert.Equal(t, 2, pub.count(EventSessionEvicted))
		assert.True(t, pub.has(EventSessionEvicted, "reason", string(apperrors.ErrCodeServerShutdown)))
		assert.Equal(t, 0, store.chatLookups("alice"))
		assert.Equal(t, 0, store.chatLookups("bob"))
	})
}
