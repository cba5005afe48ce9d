// Package listener accepts TCP sockets and runs the handshake of §6
// before handing the finished connection to the sequencer.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/rorelay/rorelay-server/internal/conn"
	"github.com/rorelay/rorelay-server/internal/core"
	"github.com/rorelay/rorelay-server/internal/wire"
)

// AdmissionTimeout bounds how long the handshake (version frame,
// credentials frame, join-password check) may take before the socket
// is closed without a table entry (§5 "Cancellation and timeouts").
const AdmissionTimeout = 10 * time.Second

// Listener accepts connections on a net.Listener and admits them into
// a Sequencer.
type Listener struct {
	ln           net.Listener
	seq          *core.Sequencer
	log          *zerolog.Logger
	passwordHash []byte // bcrypt hash of the optional join password; nil disables the check
}

// New wraps ln. passwordHash, if non-nil, is the bcrypt hash of the
// server's join password (server.password in config); an empty
// passwordHash disables the check.
func New(ln net.Listener, seq *core.Sequencer, log *zerolog.Logger, passwordHash []byte) *Listener {
	return &Listener{ln: ln, seq: seq, log: log, passwordHash: passwordHash}
}

// Run accepts connections until ctx is cancelled or Accept fails.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		netConn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go l.handle(netConn)
	}
}

// handle runs the handshake for one accepted socket and, on success,
// drives its Connection until it exits.
func (l *Listener) handle(netConn net.Conn) {
	connID := uuid.NewString()
	log := l.log.With().Str("conn_id", connID).Str("remote", netConn.RemoteAddr().String()).Logger()

	_ = netConn.SetDeadline(time.Now().Add(AdmissionTimeout))

	creds, err := l.handshake(netConn)
	if err != nil {
		log.Debug().Err(err).Msg("listener: handshake failed")
		_ = netConn.Close()
		return
	}

	var uid uint32
	connection := conn.NewConnection(netConn,
		func(f wire.Frame) {
			l.seq.Dispatch(uid, f.Type, f.StreamID, f.Payload)
		},
		func(err error) {
			l.seq.Disconnect(uid, err.Error(), true)
		},
	)

	client, err := l.seq.Admit(connection, creds)
	if err != nil {
		l.rejectAdmission(netConn, err)
		_ = netConn.Close()
		log.Info().Err(err).Msg("listener: admission rejected")
		return
	}
	uid = client.UID

	_ = netConn.SetDeadline(time.Time{})
	log.Info().Uint32("uid", uid).Msg("listener: client admitted")

	connection.Run()
}

// rejectAdmission sends the one control frame FULL/BANNED requires
// before the socket closes (§4.3 "Admission failures").
func (l *Listener) rejectAdmission(netConn net.Conn, err error) {
	msgType := wire.MsgFull
	switch {
	case errors.Is(err, core.ErrBanned):
		msgType = wire.MsgBanned
	case errors.Is(err, core.ErrServerFull):
		msgType = wire.MsgFull
	default:
		return
	}
	_ = wire.Encode(netConn, wire.Frame{Type: msgType})
}

// handshake reads the version frame followed by the credentials frame
// and, if a join password is configured, verifies it against the
// token supplied (§6 "Handshake").
func (l *Listener) handshake(netConn net.Conn) (core.Credentials, error) {
	hello, err := wire.Decode(netConn)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("listener: reading hello frame: %w", err)
	}
	if hello.Type != wire.MsgHello {
		return core.Credentials{}, core.ErrBadHandshake
	}
	if version, err := wire.DecodeHello(hello.Payload); err != nil || version != wire.HelloVersion {
		return core.Credentials{}, core.ErrBadHandshake
	}

	credFrame, err := wire.Decode(netConn)
	if err != nil {
		return core.Credentials{}, fmt.Errorf("listener: reading credentials frame: %w", err)
	}
	if credFrame.Type != wire.MsgCredentials {
		return core.Credentials{}, core.ErrBadHandshake
	}
	creds, err := wire.DecodeCredentials(credFrame.Payload)
	if err != nil {
		return core.Credentials{}, err
	}

	if len(l.passwordHash) > 0 {
		if bcrypt.CompareHashAndPassword(l.passwordHash, creds.Token) != nil {
			return core.Credentials{}, core.ErrBadHandshake
		}
	}

	ip := remoteIP(netConn)
	return core.Credentials{
		Nickname: string(wire.TrimNulPadded(creds.Nickname[:])),
		Token:    string(creds.Token),
		UniqueID: string(wire.TrimNulPadded(creds.UniqueID[:])),
		IP:       ip,
	}, nil
}

func remoteIP(netConn net.Conn) string {
	addr := netConn.RemoteAddr()
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
