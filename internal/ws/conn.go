package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/todosync/internal/shared/id"
	"github.com/GriffinCanCode/todosync/internal/shared/types"
	"github.com/GriffinCanCode/todosync/internal/ws/protocol"
)

// ErrConnClosed is returned by writes to a connection that has been closed
var ErrConnClosed = errors.New("connection closed")

const defaultWriteTimeout = 10 * time.Second

// Conn is one accepted client socket after a successful handshake.
// Replies come from the connection's own goroutine while broadcasts come
// from others, so every write goes through writeMu.
type Conn struct {
	id     string
	raw    net.Conn
	remote string

	writeMu      sync.Mutex
	writeTimeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
}

func newConn(raw net.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Conn{
		id:           id.NewConnID().String(),
		raw:          raw,
		remote:       raw.RemoteAddr().String(),
		writeTimeout: writeTimeout,
	}
}

// ID returns the connection id used in logs and the registry
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the peer address captured at accept time
func (c *Conn) RemoteAddr() string { return c.remote }

// Closed reports whether Close has been called
func (c *Conn) Closed() bool { return c.closed.Load() }

// Send marshals env and writes it as a single text frame
func (c *Conn) Send(env types.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", env.Type, err)
	}
	return c.WriteFrame(protocol.BuildFrame(string(payload)))
}

// WriteFrame writes a pre-built frame. A failed write closes the connection.
func (c *Conn) WriteFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnClosed
	}

	_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if _, err := c.raw.Write(frame); err != nil {
		c.closeLocked()
		return fmt.Errorf("write to %s: %w", c.id, err)
	}
	return nil
}

// writeRaw writes handshake bytes before the connection is open
func (c *Conn) writeRaw(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_, err := c.raw.Write(b)
	return err
}

// Close closes the socket once. Later calls are no-ops.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.raw.Close()
	})
	return err
}

// closeLocked is Close for callers already holding writeMu
func (c *Conn) closeLocked() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		_ = c.raw.Close()
	})
}
