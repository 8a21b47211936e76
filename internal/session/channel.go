package session

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openclaw/chat-relay-go/internal/config"
	apperrors "github.com/openclaw/chat-relay-go/internal/errors"
)

// Channel is a newline-framed connection. Reads are owned by a single
// goroutine; writes may come from anywhere and never interleave.
type Channel struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func NewChannel(conn net.Conn, writeTimeout time.Duration) *Channel {
	return &Channel{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, config.MaxLineBytes),
		writeTimeout: writeTimeout,
	}
}

// ReadLine returns the next line without its terminator. A zero deadline
// waits indefinitely.
func (c *Channel) ReadLine(deadline time.Time) (string, error) {
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", apperrors.ChannelClosed(err)
	}

	line, err := c.reader.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", apperrors.LineTooLong(config.MaxLineBytes)
	case err != nil:
		return "", apperrors.ChannelClosed(err)
	}
	return strings.TrimRight(string(line), "\r\n"), nil
}

// WriteLine writes one framed line under the channel's write deadline.
func (c *Channel) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return apperrors.ChannelClosed(err)
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return apperrors.ChannelClosed(err)
	}
	return nil
}

// Close is idempotent. Any read or write in flight fails once it returns.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Channel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// IsTimeout reports whether err was caused by an expired read or write
// deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
