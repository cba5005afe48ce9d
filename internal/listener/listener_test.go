package listener

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/rorelay/rorelay-server/internal/core"
	"github.com/rorelay/rorelay-server/internal/wire"
)

func putUniqueID(s string) [wire.UniqueIDMax]byte {
	var out [wire.UniqueIDMax]byte
	b := []byte(s)
	if len(b) > wire.UniqueIDMax {
		b = b[:wire.UniqueIDMax]
	}
	copy(out[:], b)
	return out
}

func newTestSequencer(t *testing.T, maxClients int) *core.Sequencer {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.MaxClients = maxClients
	cfg.ChatRatePerMin = 0
	s := core.New(cfg, nil, nil, nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
	return s
}

func sendHandshake(t *testing.T, conn net.Conn, nickname, token string) {
	t.Helper()
	if err := wire.Encode(conn, wire.Frame{Type: wire.MsgHello, Payload: wire.EncodeHello(wire.HelloVersion)}); err != nil {
		t.Fatalf("encode hello: %v", err)
	}
	creds := wire.CredentialsPayload{
		Nickname: wire.PutNickname(nickname),
		UniqueID: putUniqueID(nickname + "-uid"),
		Token:    []byte(token),
	}
	if err := wire.Encode(conn, wire.Frame{Type: wire.MsgCredentials, Payload: wire.EncodeCredentials(creds)}); err != nil {
		t.Fatalf("encode credentials: %v", err)
	}
}

func TestHandleAdmitsOnSuccessfulHandshake(t *testing.T) {
	seq := newTestSequencer(t, 4)
	l := New(nil, seq, discardLogger(), nil)

	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() { l.handle(server); close(done) }()

	sendHandshake(t, client, "alice", "")

	// A successful admission replays no rejection frame; instead the
	// connection stays open and the client ends up in the table. Give
	// the handler a moment to reach Admit.
	deadline := time.After(2 * time.Second)
	for {
		if seq.ClientCount() == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for admission")
		case <-time.After(time.Millisecond):
		}
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not exit after the client hung up")
	}
}

func TestHandleRejectsBadHelloVersion(t *testing.T) {
	seq := newTestSequencer(t, 4)
	l := New(nil, seq, discardLogger(), nil)

	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() { l.handle(server); close(done) }()

	if err := wire.Encode(client, wire.Frame{Type: wire.MsgHello, Payload: wire.EncodeHello(999)}); err != nil {
		t.Fatalf("encode hello: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not exit on a bad handshake")
	}
	if seq.ClientCount() != 0 {
		t.Fatal("a failed handshake must not admit a client")
	}
}

func TestHandleSendsFullFrameWhenServerIsFull(t *testing.T) {
	seq := newTestSequencer(t, 0)
	l := New(nil, seq, discardLogger(), nil)

	server, client := net.Pipe()
	defer client.Close()

	go l.handle(server)
	sendHandshake(t, client, "alice", "")

	frame, err := wire.Decode(client)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Type != wire.MsgFull {
		t.Fatalf("got frame type %v, want FULL", frame.Type)
	}
}

func TestHandleSendsBannedFrameForBannedIP(t *testing.T) {
	seq := newTestSequencer(t, 4)
	mod, _ := admitTestClient(t, seq, "mod", "10.0.0.9")
	mod.AuthFlags = core.AuthAdmin
	victim, _ := admitTestClient(t, seq, "victim", "10.0.0.5")
	if err := seq.Ban(victim.UID, mod.UID, "bad actor"); err != nil {
		t.Fatalf("ban: %v", err)
	}

	l := New(nil, seq, discardLogger(), nil)

	server, client := net.Pipe()
	defer client.Close()
	server = &fakeAddrConn{Conn: server, remote: "10.0.0.5:5000"}

	go l.handle(server)
	sendHandshake(t, client, "victim2", "")

	frame, err := wire.Decode(client)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Type != wire.MsgBanned {
		t.Fatalf("got frame type %v, want BANNED", frame.Type)
	}
}

func TestHandleRejectsWrongJoinPassword(t *testing.T) {
	seq := newTestSequencer(t, 4)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	l := New(nil, seq, discardLogger(), hash)

	server, client := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() { l.handle(server); close(done) }()

	sendHandshake(t, client, "alice", "wrong-password")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not exit on a rejected password")
	}
	if seq.ClientCount() != 0 {
		t.Fatal("a wrong join password must not admit a client")
	}
}

func TestHandleAcceptsCorrectJoinPassword(t *testing.T) {
	seq := newTestSequencer(t, 4)
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	l := New(nil, seq, discardLogger(), hash)

	server, client := net.Pipe()
	defer client.Close()

	go l.handle(server)
	sendHandshake(t, client, "alice", "secret")

	deadline := time.After(2 * time.Second)
	for {
		if seq.ClientCount() == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for admission with the correct password")
		case <-time.After(time.Millisecond):
		}
	}
}

func admitTestClient(t *testing.T, s *core.Sequencer, nickname, ip string) (*core.Client, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	conn := &fakeHandle{ip: ip}
	c, err := s.Admit(conn, core.Credentials{Nickname: nickname, UniqueID: nickname + "-uid", IP: ip})
	if err != nil {
		t.Fatalf("admit %q: %v", nickname, err)
	}
	return c, client
}

// fakeHandle satisfies core's connHandle without any real socket, for
// tests that only need a client in the table, not an actual pipe.
type fakeHandle struct{ ip string }

func (f *fakeHandle) QueueFrame(uint32, uint32, uint32, []byte) bool { return true }
func (f *fakeHandle) RemoteIP() string                               { return f.ip }

// fakeAddrConn wraps a net.Pipe half to report an arbitrary RemoteAddr,
// since net.Pipe's own addresses aren't host:port strings.
type fakeAddrConn struct {
	net.Conn
	remote string
}

func (c *fakeAddrConn) RemoteAddr() net.Addr { return fakeAddr(c.remote) }

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
