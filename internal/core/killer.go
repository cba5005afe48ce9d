package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Victim is the narrow surface the Killer needs to tear a connection
// down. The concrete Connection type in internal/conn implements it.
// Stopping happens in the strict order StopBroadcaster, StopReceiver,
// Disconnect — a running Broadcaster that touches a disconnected socket
// would fault (§4.6).
type Victim interface {
	StopBroadcaster()
	StopReceiver()
	Disconnect() error
}

type killTask struct {
	client *Client
	victim Victim
	reason string
}

// killStage names one step of victim teardown, used for the ordering
// hook exercised by tests and for log correlation.
type killStage string

const (
	StageBroadcasterStopped killStage = "broadcaster_stopped"
	StageReceiverStopped    killStage = "receiver_stopped"
	StageDisconnected       killStage = "disconnected"
	StageFreed              killStage = "freed"
)

// killer is the background reaper that serializes destruction of
// Connections and Client records dequeued by the Sequencer (§4.6). It
// runs forever; a panic inside victim cleanup is contained and logged,
// never propagated (§7).
type killer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []killTask
	stopped bool
	log     *zerolog.Logger

	// onStage, if set, is invoked after each teardown stage completes
	// for uid. Used by tests to assert strict ordering (§8 "Killer
	// ordering").
	onStage func(uid uint32, stage killStage)
}

func newKiller(log *zerolog.Logger) *killer {
	k := &killer{log: log}
	k.cond = sync.NewCond(&k.mu)
	return k
}

// enqueue adds a victim to the kill queue and wakes the reaper.
func (k *killer) enqueue(task killTask) {
	k.mu.Lock()
	k.queue = append(k.queue, task)
	k.cond.Signal()
	k.mu.Unlock()
}

// run drains the queue forever until stop is called. Intended to run
// in its own goroutine.
func (k *killer) run() {
	for {
		k.mu.Lock()
		for len(k.queue) == 0 && !k.stopped {
			k.cond.Wait()
		}
		if k.stopped && len(k.queue) == 0 {
			k.mu.Unlock()
			return
		}
		task := k.queue[0]
		k.queue = k.queue[1:]
		k.mu.Unlock()

		k.reapOne(task)
	}
}

func (k *killer) stop() {
	k.mu.Lock()
	k.stopped = true
	k.cond.Broadcast()
	k.mu.Unlock()
}

// reapOne runs the strict teardown order for one victim, containing any
// panic so the reaper loop survives a misbehaving Connection.
func (k *killer) reapOne(task killTask) {
	defer func() {
		if r := recover(); r != nil && k.log != nil {
			k.log.Error().
				Uint32("uid", task.client.UID).
				Interface("panic", r).
				Msg("killer: recovered panic during victim cleanup")
		}
	}()

	uid := task.client.UID

	task.client.mu.Lock()
	task.client.BeamBuffer = nil
	task.client.mu.Unlock()

	task.victim.StopBroadcaster()
	k.notify(uid, StageBroadcasterStopped)

	task.victim.StopReceiver()
	k.notify(uid, StageReceiverStopped)

	if err := task.victim.Disconnect(); err != nil && k.log != nil {
		k.log.Warn().Uint32("uid", uid).Err(err).Msg("killer: socket disconnect error")
	}
	k.notify(uid, StageDisconnected)

	// The Client record itself is freed by virtue of being dropped from
	// the table by disconnect() before enqueue; nothing further to do
	// here but announce completion.
	k.notify(uid, StageFreed)

	if k.log != nil {
		k.log.Info().Uint32("uid", uid).Str("reason", task.reason).Msg("client reaped")
	}
}

func (k *killer) notify(uid uint32, stage killStage) {
	if k.onStage != nil {
		k.onStage(uid, stage)
	}
}
