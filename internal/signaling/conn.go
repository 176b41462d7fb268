package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrIdleTimeout is returned by Receive when no frame or heartbeat arrived
	// within the idle window. The connection stays usable.
	ErrIdleTimeout = errors.New("signaling: idle timeout")
	// ErrDisconnected is returned by Receive once the peer is gone.
	ErrDisconnected = errors.New("signaling: peer disconnected")
	// ErrConnClosed is returned by sends on a closed connection.
	ErrConnClosed = errors.New("signaling: connection closed")
	// ErrInvalidText ends a connection that sent a text frame that is not
	// valid UTF-8.
	ErrInvalidText = errors.New("signaling: text frame is not valid utf-8")
)

type FrameKind uint8

const (
	FrameText FrameKind = iota + 1
	FrameBinary
	// FrameHeartbeat marks a pong. It proves liveness and is never forwarded.
	FrameHeartbeat
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	case FrameHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

type Frame struct {
	Kind FrameKind
	Data []byte
}

// Conn is one peer's transport within a room.
//
// Send methods are safe for concurrent use; Receive must only be called by
// the Session that owns the connection.
type Conn interface {
	ID() string
	Receive(ctx context.Context, idle time.Duration) (Frame, error)
	SendText(data []byte) error
	SendBinary(data []byte) error
	// Probe sends a liveness probe carrying data.
	Probe(data []byte) error
	CloseWith(code int, reason string) error
	Close() error
}

const inboundQueue = 16

type wsConn struct {
	id        string
	conn      *websocket.Conn
	writeWait time.Duration

	inbound chan Frame
	done    chan struct{}
	readErr error

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

// newWSConn takes ownership of conn and starts its reader goroutine.
func newWSConn(conn *websocket.Conn, writeWait time.Duration, maxMessageBytes int64) *wsConn {
	c := &wsConn{
		id:        uuid.NewString(),
		conn:      conn,
		writeWait: writeWait,
		inbound:   make(chan Frame, inboundQueue),
		done:      make(chan struct{}),
	}
	if maxMessageBytes > 0 {
		conn.SetReadLimit(maxMessageBytes)
	}
	conn.SetPongHandler(func(string) error {
		select {
		case c.inbound <- Frame{Kind: FrameHeartbeat}:
		default:
			// A queued frame already proves liveness.
		}
		return nil
	})
	go c.readLoop()
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) readLoop() {
	defer close(c.inbound)
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		var f Frame
		switch msgType {
		case websocket.TextMessage:
			if !utf8.Valid(data) {
				// Relaying this would make browsers fail every other peer's
				// connection.
				c.readErr = ErrInvalidText
				_ = c.CloseWith(websocket.CloseInvalidFramePayloadData, "invalid utf-8")
				return
			}
			f = Frame{Kind: FrameText, Data: data}
		case websocket.BinaryMessage:
			f = Frame{Kind: FrameBinary, Data: data}
		default:
			continue
		}
		select {
		case c.inbound <- f:
		case <-c.done:
			c.readErr = ErrConnClosed
			return
		}
	}
}

func (c *wsConn) Receive(ctx context.Context, idle time.Duration) (Frame, error) {
	timer := time.NewTimer(idle)
	defer timer.Stop()

	select {
	case f, ok := <-c.inbound:
		if !ok {
			// readErr is written before inbound is closed.
			return Frame{}, fmt.Errorf("%w: %v", ErrDisconnected, c.readErr)
		}
		return f, nil
	case <-timer.C:
		return Frame{}, ErrIdleTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *wsConn) SendText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) SendBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *wsConn) write(msgType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(msgType, data)
}

func (c *wsConn) Probe(data []byte) error {
	if err := c.SendText(data); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// CloseWith sends a close frame with code and reason, then closes the
// connection.
func (c *wsConn) CloseWith(code int, reason string) error {
	c.writeMu.Lock()
	if !c.closed {
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(c.writeWait))
	}
	c.writeMu.Unlock()
	return c.Close()
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.writeMu.Unlock()
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
