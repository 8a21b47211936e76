package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openclaw/chat-relay-go/internal/config"
	"github.com/openclaw/chat-relay-go/internal/protocol"
)

const ioTimeout = 2 * time.Second

func testConfig() *config.Config {
	return &config.Config{
		Host:                 "127.0.0.1",
		PairingWindowSeconds: 1,
		AuthTimeoutSeconds:   5,
		ProbeIntervalMs:      50,
		ProbeReplyWindowMs:   100,
		MaxLoginAttempts:     3,
		LoginRateLimitPerMin: 10,
		HistoryLimit:         50,
		SendQueueSize:        64,
		WriteTimeoutMs:       500,
	}
}

func newTestServer(t *testing.T, store Store, configure ...func(*config.Config)) *Server {
	t.Helper()

	cfg := testConfig()
	for _, fn := range configure {
		fn(cfg)
	}

	commandLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	livenessLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(cfg, store, nil)
	require.NoError(t, srv.Serve(commandLn, livenessLn))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

// testClient speaks the wire protocol the way a real client does: a
// liveness connection that answers probes and a command connection.
type testClient struct {
	t         *testing.T
	token     string
	liveness  net.Conn
	command   net.Conn
	cmdReader *bufio.Reader
	mute      atomic.Bool
	liveDone  chan struct{}
}

// dialUnpaired opens the liveness connection and reads the token.
func dialUnpaired(t *testing.T, srv *Server) *testClient {
	t.Helper()

	live, err := net.Dial("tcp", srv.LivenessAddr().String())
	require.NoError(t, err)
	t.Cleanup(func() { live.Close() })

	reader := bufio.NewReader(live)
	require.NoError(t, live.SetReadDeadline(time.Now().Add(ioTimeout)))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.NoError(t, live.SetReadDeadline(time.Time{}))

	line = strings.TrimSpace(line)
	require.True(t, strings.HasPrefix(line, "AUTH: "), "unexpected token line %q", line)

	c := &testClient{
		t:        t,
		token:    strings.TrimPrefix(line, "AUTH: "),
		liveness: live,
		liveDone: make(chan struct{}),
	}
	go c.answerProbes(reader)
	return c
}

func dialClient(t *testing.T, srv *Server) *testClient {
	t.Helper()
	c := dialUnpaired(t, srv)
	c.pair(srv, c.token)
	return c
}

func (c *testClient) pair(srv *Server, token string) {
	c.t.Helper()

	cmd, err := net.Dial("tcp", srv.CommandAddr().String())
	require.NoError(c.t, err)
	c.t.Cleanup(func() { cmd.Close() })

	c.command = cmd
	c.cmdReader = bufio.NewReader(cmd)
	c.send(protocol.Encode(protocol.VerbAuth, token))
}

func (c *testClient) answerProbes(reader *bufio.Reader) {
	defer close(c.liveDone)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		if strings.TrimSpace(line) == protocol.KeepAlive && !c.mute.Load() {
			_, _ = c.liveness.Write([]byte(protocol.Alive + "\n"))
		}
	}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	require.NoError(c.t, c.command.SetWriteDeadline(time.Now().Add(ioTimeout)))
	_, err := c.command.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
}

func (c *testClient) sendJSON(verb string, v any) {
	c.t.Helper()
	require.NoError(c.t, c.writeJSON(verb, v))
}

// writeJSON is safe to call off the test goroutine.
func (c *testClient) writeJSON(verb string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.command.SetWriteDeadline(time.Now().Add(ioTimeout)); err != nil {
		return err
	}
	_, err = c.command.Write([]byte(protocol.Encode(verb, string(data)) + "\n"))
	return err
}

func (c *testClient) expect() string {
	c.t.Helper()
	require.NoError(c.t, c.command.SetReadDeadline(time.Now().Add(ioTimeout)))
	line, err := c.cmdReader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

func (c *testClient) expectJSON(v any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal([]byte(c.expect()), v))
}

func (c *testClient) expectNothing(wait time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.command.SetReadDeadline(time.Now().Add(wait)))
	line, err := c.cmdReader.ReadString('\n')
	require.Error(c.t, err, "unexpected line %q", line)
	require.True(c.t, errors.Is(err, os.ErrDeadlineExceeded), "connection failed: %v", err)
}

// expectClosed drains the command connection until the server closes it.
func (c *testClient) expectClosed() {
	c.t.Helper()
	require.NoError(c.t, c.command.SetReadDeadline(time.Now().Add(ioTimeout)))
	for {
		_, err := c.cmdReader.ReadString('\n')
		if err != nil {
			require.False(c.t, errors.Is(err, os.ErrDeadlineExceeded), "connection still open")
			return
		}
	}
}

func (c *testClient) expectLivenessClosed() {
	c.t.Helper()
	select {
	case <-c.liveDone:
	case <-time.After(ioTimeout):
		c.t.Fatal("liveness connection still open")
	}
}

func login(t *testing.T, srv *Server, store *fakeStore, username string) *testClient {
	t.Helper()
	store.addUser(username, "pw-"+username)

	c := dialClient(t, srv)
	c.sendJSON(protocol.VerbLogin, protocol.Credentials{Username: username, Password: "pw-" + username})
	require.Equal(t, protocol.AuthSuccess, c.expect())
	return c
}
