package conn

import (
	"sync"

	"github.com/rorelay/rorelay-server/internal/wire"
)

// BroadcasterQueueCap bounds the number of frames a Broadcaster will
// hold before it starts discarding lowest-priority frames (§4.2).
const BroadcasterQueueCap = 256

// priority classifies an outgoing frame for drop purposes. Stream data
// is lowest priority; control messages are never dropped (§4.2).
type priority int

const (
	priorityControl priority = iota
	priorityStreamData
)

func classify(t wire.MsgType) priority {
	switch t {
	case wire.MsgStreamData, wire.MsgVehicleData:
		return priorityStreamData
	default:
		return priorityControl
	}
}

type outEntry struct {
	frame wire.Frame
	prio  priority
}

// frameWriter is the narrow surface Broadcaster writes to.
type frameWriter interface {
	WriteFrame(wire.Frame) error
}

// Broadcaster holds a bounded FIFO of outgoing frames plus a drop
// counter (§4.2). queue() is non-blocking from the caller's
// perspective: if the queue is full it discards the oldest frame of
// the lowest-priority class to make room, or — if every queued frame
// is already control-priority and the incoming frame is stream data —
// drops the incoming frame itself and counts it.
type Broadcaster struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     []outEntry
	cap       int
	stopped   bool
	dropCount uint64

	w    frameWriter
	done chan struct{}
	fail chan error
}

// NewBroadcaster constructs a Broadcaster that writes to w, reporting
// fatal write errors on fail (a buffered channel the owner drains).
func NewBroadcaster(w frameWriter, fail chan error) *Broadcaster {
	b := &Broadcaster{
		cap:  BroadcasterQueueCap,
		w:    w,
		done: make(chan struct{}),
		fail: fail,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Run drains the queue in FIFO order, writing whole frames. A write
// error is fatal and reported on the failure channel. Run returns when
// Stop is called or a write fails.
func (b *Broadcaster) Run() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.stopped {
			b.cond.Wait()
		}
		if b.stopped && len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		entry := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		if err := b.w.WriteFrame(entry.frame); err != nil {
			b.reportFailure(err)
			return
		}
	}
}

func (b *Broadcaster) reportFailure(err error) {
	select {
	case b.fail <- err:
	default:
	}
}

// Queue enqueues a frame, returning false if it was dropped for
// backpressure.
func (b *Broadcaster) Queue(msgType uint32, sourceUID, streamID uint32, payload []byte) bool {
	entry := outEntry{
		frame: wire.Frame{Type: wire.MsgType(msgType), SourceUID: sourceUID, StreamID: streamID, Payload: payload},
		prio:  classify(wire.MsgType(msgType)),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return false
	}

	if len(b.queue) < b.cap {
		b.queue = append(b.queue, entry)
		b.cond.Signal()
		return true
	}

	if idx := b.oldestStreamDataLocked(); idx >= 0 {
		b.queue = append(b.queue[:idx], b.queue[idx+1:]...)
		b.queue = append(b.queue, entry)
		b.dropCount++
		b.cond.Signal()
		return true
	}

	if entry.prio == priorityStreamData {
		// Nothing lower-priority to evict and the new frame is itself
		// stream data: drop it.
		b.dropCount++
		return false
	}

	// Every queued frame is control-priority and the incoming frame is
	// also control: control is never dropped, so the queue grows past
	// cap just this once.
	b.queue = append(b.queue, entry)
	b.cond.Signal()
	return true
}

func (b *Broadcaster) oldestStreamDataLocked() int {
	for i, e := range b.queue {
		if e.prio == priorityStreamData {
			return i
		}
	}
	return -1
}

// DropCount returns the number of frames discarded for backpressure.
func (b *Broadcaster) DropCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropCount
}

// Stop signals the drain loop to exit and blocks until it has, so
// callers can rely on Stop having fully quiesced the Broadcaster before
// proceeding (§8 "Killer ordering").
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if !b.stopped {
		b.stopped = true
		b.cond.Broadcast()
	}
	b.mu.Unlock()
	<-b.done
}
