package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// fakeConn is a scripted Conn. Tests feed Receive through push/idle and
// inspect what the relay sent.
type fakeConn struct {
	id string

	recv     chan recvResult
	closedCh chan struct{}

	mu          sync.Mutex
	sent        []Frame
	probes      [][]byte
	sendErr     error
	probeErr    error
	closeCalls  int
	closeCode   int
	closeReason string
}

type recvResult struct {
	frame Frame
	err   error
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{
		id:       id,
		recv:     make(chan recvResult, 16),
		closedCh: make(chan struct{}),
	}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Receive(ctx context.Context, _ time.Duration) (Frame, error) {
	select {
	case r := <-c.recv:
		return r.frame, r.err
	case <-c.closedCh:
		return Frame{}, ErrDisconnected
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (c *fakeConn) pushText(s string) {
	c.recv <- recvResult{frame: Frame{Kind: FrameText, Data: []byte(s)}}
}

func (c *fakeConn) pushBinary(b []byte) {
	c.recv <- recvResult{frame: Frame{Kind: FrameBinary, Data: b}}
}

func (c *fakeConn) pushHeartbeat() { c.recv <- recvResult{frame: Frame{Kind: FrameHeartbeat}} }

func (c *fakeConn) pushIdle() { c.recv <- recvResult{err: ErrIdleTimeout} }

func (c *fakeConn) pushErr(err error) { c.recv <- recvResult{err: err} }

func (c *fakeConn) failSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

func (c *fakeConn) failProbes(err error) {
	c.mu.Lock()
	c.probeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) send(kind FrameKind, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closeCalls > 0 {
		return ErrConnClosed
	}
	c.sent = append(c.sent, Frame{Kind: kind, Data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SendText(data []byte) error   { return c.send(FrameText, data) }
func (c *fakeConn) SendBinary(data []byte) error { return c.send(FrameBinary, data) }

func (c *fakeConn) Probe(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.probeErr != nil {
		return c.probeErr
	}
	c.probes = append(c.probes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) CloseWith(code int, reason string) error {
	c.mu.Lock()
	if c.closeCode == 0 {
		c.closeCode = code
		c.closeReason = reason
	}
	c.mu.Unlock()
	return c.Close()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closeCalls == 1 {
		close(c.closedCh)
	}
	return nil
}

func (c *fakeConn) sentFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.sent...)
}

func (c *fakeConn) probeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.probes)
}

func (c *fakeConn) probeData() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.probes...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls > 0
}

func (c *fakeConn) closeStatus() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode, c.closeReason
}

// peerCounts returns the counts of every peers message sent to c, in order.
func (c *fakeConn) peerCounts() []int {
	var counts []int
	for _, f := range c.sentFrames() {
		if f.Kind != FrameText {
			continue
		}
		var msg PeerCountMessage
		if err := json.Unmarshal(f.Data, &msg); err == nil && msg.Type == MessageTypePeers {
			counts = append(counts, msg.Count)
		}
	}
	return counts
}

// relayed returns the frames sent to c that were not peer-count updates.
func (c *fakeConn) relayed() []Frame {
	var out []Frame
	for _, f := range c.sentFrames() {
		if f.Kind == FrameText {
			if typ, ok := messageType(f.Data); ok && typ == MessageTypePeers {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

var errBrokenPipe = errors.New("write: broken pipe")
