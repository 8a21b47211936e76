package session

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/chat-relay-go/internal/config"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
)

func newPipeChannel(t *testing.T) (*Channel, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewChannel(server, time.Second), client
}

func TestChannel_ReadLine(t *testing.T) {
	t.Run("strips terminators", func(t *testing.T) {
		ch, peer := newPipeChannel(t)
		go peer.Write([]byte("LOGIN:{}\r\nALIVE\n"))

		line, err := ch.ReadLine(time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "LOGIN:{}", line)

		line, err = ch.ReadLine(time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "ALIVE", line)
	})

	t.Run("deadline expires", func(t *testing.T) {
		ch, _ := newPipeChannel(t)

		_, err := ch.ReadLine(time.Now().Add(20 * time.Millisecond))
		require.Error(t, err)
		assert.True(t, IsTimeout(err))
		assert.Equal(t, apperrors.ErrCodeChannelClosed, apperrors.GetCode(err))
	})

	t.Run("peer close", func(t *testing.T) {
		ch, peer := newPipeChannel(t)
		peer.Close()

		_, err := ch.ReadLine(time.Time{})
		require.Error(t, err)
		assert.False(t, IsTimeout(err))
		assert.Equal(t, apperrors.ErrCodeChannelClosed, apperrors.GetCode(err))
	})

	t.Run("oversized line", func(t *testing.T) {
		ch, peer := newPipeChannel(t)
		go peer.Write([]byte(strings.Repeat("x", config.MaxLineBytes+10)))

		_, err := ch.ReadLine(time.Now().Add(time.Second))
		assert.Equal(t, apperrors.ErrCodeLineTooLong, apperrors.GetCode(err))
	})
}

func TestChannel_WriteLine(t *testing.T) {
	t.Run("appends newline", func(t *testing.T) {
		ch, peer := newPipeChannel(t)
		go func() {
			_ = ch.WriteLine("KEEP_ALIVE")
		}()

		line, err := bufio.NewReader(peer).ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, "KEEP_ALIVE\n", line)
	})

	t.Run("unread peer times out", func(t *testing.T) {
		server, client := net.Pipe()
		defer client.Close()
		ch := NewChannel(server, 20*time.Millisecond)
		defer ch.Close()

		err := ch.WriteLine("KEEP_ALIVE")
		require.Error(t, err)
		assert.True(t, IsTimeout(err))
	})

	t.Run("closed channel", func(t *testing.T) {
		ch, _ := newPipeChannel(t)
		require.NoError(t, ch.Close())
		require.NoError(t, ch.Close())

		err := ch.WriteLine("ALIVE")
		assert.Equal(t, apperrors.ErrCodeChannelClosed, apperrors.GetCode(err))
	})
}
