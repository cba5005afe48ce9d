package conn

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/rorelay/rorelay-server/internal/wire"
)

// frameReader is the narrow surface Receiver reads from. net.Conn
// satisfies it; tests can substitute a fake.
type frameReader interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// Receiver reads frames off a connection and hands them to onFrame. On
// any read error or EOF that was not caused by a cooperative Stop, it
// reports the error on fail (§4.2).
type Receiver struct {
	r       frameReader
	onFrame func(wire.Frame)

	stopped atomic.Bool
	done    chan struct{}
	fail    chan error
}

// NewReceiver constructs a Receiver bound to r.
func NewReceiver(r frameReader, onFrame func(wire.Frame), fail chan error) *Receiver {
	return &Receiver{
		r:       r,
		onFrame: onFrame,
		done:    make(chan struct{}),
		fail:    fail,
	}
}

// Run reads frames until a fatal error, EOF, or Stop. Intended to run
// in its own goroutine.
func (r *Receiver) Run() {
	defer close(r.done)
	for {
		frame, err := wire.Decode(r.r)
		if err != nil {
			if r.stopped.Load() {
				return // cooperative stop (induced by our own read deadline), not a failure
			}
			r.reportFailure(err)
			return
		}
		r.onFrame(frame)
	}
}

func (r *Receiver) reportFailure(err error) {
	select {
	case r.fail <- err:
	default:
	}
}

// Stop asks the Receiver to exit cooperatively between frames. Because
// a blocked Read cannot observe a flag, Stop forces it to return by
// setting an immediate read deadline, then waits for Run to exit — so
// callers can rely on Stop having fully quiesced the Receiver before
// proceeding (§8 "Killer ordering").
func (r *Receiver) Stop() {
	r.stopped.Store(true)
	_ = r.r.SetReadDeadline(time.Now())
	<-r.done
}
