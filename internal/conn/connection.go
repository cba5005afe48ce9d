package conn

import (
	"net"
	"sync"

	"github.com/rorelay/rorelay-server/internal/wire"
)

// Connection ties one accepted socket to its Broadcaster/Receiver pair.
// Rather than the original callback cycle back into the sequencer
// (§9), a fatal I/O error from either half is reported once, via
// onFailure, on a shared channel the connection itself drains.
type Connection struct {
	conn net.Conn

	b *Broadcaster
	r *Receiver

	fail   chan error
	once   sync.Once
	onFail func(error)
}

// NewConnection wraps conn. Decoded frames are handed to onFrame; a
// fatal broadcaster or receiver error invokes onFailure at most once.
// uid is not known at construction time (admission assigns it) — the
// caller's closures capture it once Admit returns.
func NewConnection(conn net.Conn, onFrame func(wire.Frame), onFailure func(error)) *Connection {
	fail := make(chan error, 2)
	c := &Connection{
		conn:   conn,
		fail:   fail,
		onFail: onFailure,
	}
	c.b = NewBroadcaster(connWriter{conn}, fail)
	c.r = NewReceiver(conn, onFrame, fail)
	return c
}

// Run starts the broadcaster and receiver loops and the failure drain,
// blocking until both loops have exited. Callers run it in its own
// goroutine per accepted connection.
func (c *Connection) Run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.b.Run() }()
	go func() { defer wg.Done(); c.r.Run() }()

	done := make(chan struct{})
	go func() {
		select {
		case err := <-c.fail:
			c.reportFailure(err)
		case <-done:
		}
	}()

	wg.Wait()
	close(done)
}

func (c *Connection) reportFailure(err error) {
	c.once.Do(func() {
		if c.onFail != nil {
			c.onFail(err)
		}
	})
}

// QueueFrame implements core.connHandle.
func (c *Connection) QueueFrame(msgType uint32, sourceUID, streamID uint32, payload []byte) bool {
	return c.b.Queue(msgType, sourceUID, streamID, payload)
}

// RemoteIP implements core.connHandle.
func (c *Connection) RemoteIP() string {
	addr := c.conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// StopBroadcaster implements core.Victim.
func (c *Connection) StopBroadcaster() {
	c.b.Stop()
}

// StopReceiver implements core.Victim.
func (c *Connection) StopReceiver() {
	c.r.Stop()
}

// Disconnect implements core.Victim, closing the underlying socket.
func (c *Connection) Disconnect() error {
	return c.conn.Close()
}

// connWriter adapts net.Conn to frameWriter.
type connWriter struct {
	net.Conn
}

func (w connWriter) WriteFrame(f wire.Frame) error {
	return wire.Encode(w.Conn, f)
}
