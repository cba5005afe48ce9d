package core

import (
	"sync"
	"testing"

	"github.com/rorelay/rorelay-server/internal/wire"
)

// recordingConn is a fake connHandle/Victim used across the core test
// suite to observe what the Sequencer queues and tears down, without a
// real socket.
type recordingConn struct {
	mu      sync.Mutex
	ip      string
	frames  []queuedFrame
	stopped []string
}

type queuedFrame struct {
	msgType, sourceUID, streamID uint32
	payload                      []byte
}

func newRecordingConn(ip string) *recordingConn {
	return &recordingConn{ip: ip}
}

func (c *recordingConn) QueueFrame(msgType, sourceUID, streamID uint32, payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, queuedFrame{msgType, sourceUID, streamID, payload})
	return true
}

func (c *recordingConn) RemoteIP() string { return c.ip }

func (c *recordingConn) StopBroadcaster() { c.mark("StopBroadcaster") }
func (c *recordingConn) StopReceiver()    { c.mark("StopReceiver") }
func (c *recordingConn) Disconnect() error {
	c.mark("Disconnect")
	return nil
}

func (c *recordingConn) mark(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = append(c.stopped, name)
}

func (c *recordingConn) framesOfType(msgType wire.MsgType) []queuedFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []queuedFrame
	for _, f := range c.frames {
		if f.msgType == uint32(msgType) {
			out = append(out, f)
		}
	}
	return out
}

func newTestSequencer(maxClients int) *Sequencer {
	cfg := DefaultConfig()
	cfg.MaxClients = maxClients
	cfg.ChatRatePerMin = 0 // unlimited unless a test overrides it
	return New(cfg, nil, nil, nil, nil, nil, nil)
}

// admit drives the full admission protocol for one peer and returns its
// assigned Client and the recordingConn standing in for its socket.
func admit(t *testing.T, s *Sequencer, nickname, ip string) (*Client, *recordingConn) {
	t.Helper()
	conn := newRecordingConn(ip)
	client, err := s.Admit(conn, Credentials{Nickname: nickname, UniqueID: nickname + "-uid", IP: ip})
	if err != nil {
		t.Fatalf("admit %q: %v", nickname, err)
	}
	return client, conn
}
