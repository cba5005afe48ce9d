package core

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/rorelay/rorelay-server/internal/wire"
)

func TestDispatchDropsFramesBeforeFlowEnabled(t *testing.T) {
	s := newTestSequencer(4)
	alice, aliceConn := admit(t, s, "alice", "10.0.0.1")
	bob, bobConn := admit(t, s, "bob", "10.0.0.2")
	s.EnableFlow(bob.UID)

	s.Dispatch(alice.UID, wire.MsgStreamData, 1, []byte("too early"))

	if len(bobConn.framesOfType(wire.MsgStreamData)) != 0 {
		t.Fatalf("stream data sent before flow-enable must be dropped")
	}
	_ = aliceConn
}

func TestDispatchFlowEnableIsAllowedBeforeFlowEnabled(t *testing.T) {
	s := newTestSequencer(4)
	alice, _ := admit(t, s, "alice", "10.0.0.1")

	s.Dispatch(alice.UID, wire.MsgFlowEnable, 0, nil)

	c, _ := s.table.lookup(alice.UID)
	if !c.FlowEnabled {
		t.Fatal("MsgFlowEnable must reach EnableFlow even before flow is enabled")
	}
}

func TestDispatchStreamRegisterCapEnforced(t *testing.T) {
	s := newTestSequencer(4)
	alice, _ := admit(t, s, "alice", "10.0.0.1")
	s.EnableFlow(alice.UID)

	payload := encodeStreamRegister(StreamRegistration{Type: StreamTruck, Status: 1})
	for i := uint32(0); i < MaxStreamsPerClient; i++ {
		s.Dispatch(alice.UID, wire.MsgStreamRegister, i, payload)
	}
	c, _ := s.table.lookup(alice.UID)
	if len(c.Streams()) != MaxStreamsPerClient {
		t.Fatalf("got %d streams, want %d", len(c.Streams()), MaxStreamsPerClient)
	}

	s.Dispatch(alice.UID, wire.MsgStreamRegister, MaxStreamsPerClient, payload)
	if len(c.Streams()) != MaxStreamsPerClient {
		t.Fatalf("registration past the cap must be dropped silently, got %d streams", len(c.Streams()))
	}
}

func TestDispatchVehicleDataUpdatesPosition(t *testing.T) {
	s := newTestSequencer(4)
	alice, _ := admit(t, s, "alice", "10.0.0.1")
	s.EnableFlow(alice.UID)

	payload := make([]byte, 8+12)
	binary.LittleEndian.PutUint32(payload[8:12], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(payload[12:16], math.Float32bits(2.5))
	binary.LittleEndian.PutUint32(payload[16:20], math.Float32bits(3.5))

	s.Dispatch(alice.UID, wire.MsgVehicleData, 0, payload)

	c, _ := s.table.lookup(alice.UID)
	pos := c.PositionSnapshot()
	if pos.X != 1.5 || pos.Y != 2.5 || pos.Z != 3.5 {
		t.Fatalf("got position %+v, want {1.5 2.5 3.5}", pos)
	}
}

func TestDispatchGameCmdFromClientIsDroppedAsUnknown(t *testing.T) {
	// GAME_CMD has no client-originated direction (§4.3, §4.4):
	// Sequencer.SendGameCommand is the only way a GAME_CMD frame is
	// ever sent. A client sending one is treated as an unknown type.
	s := newTestSequencer(4)
	alice, _ := admit(t, s, "alice", "10.0.0.1")
	bob, bobConn := admit(t, s, "bob", "10.0.0.2")
	s.EnableFlow(alice.UID)
	s.EnableFlow(bob.UID)

	s.Dispatch(alice.UID, wire.MsgGameCmd, 0, []byte("terrainset foo"))

	if len(bobConn.framesOfType(wire.MsgGameCmd)) != 0 {
		t.Fatal("an inbound GAME_CMD must not be relayed to any other client")
	}
}

func TestDispatchDeleteDisconnectsCleanly(t *testing.T) {
	s := newTestSequencer(4)
	alice, _ := admit(t, s, "alice", "10.0.0.1")
	bob, bobConn := admit(t, s, "bob", "10.0.0.2")
	s.EnableFlow(alice.UID)
	s.EnableFlow(bob.UID)

	s.Dispatch(alice.UID, wire.MsgDelete, 0, nil)

	if _, ok := s.table.lookup(alice.UID); ok {
		t.Fatal("MsgDelete should remove the sender from the table")
	}
	if len(bobConn.framesOfType(wire.MsgUserLeave)) != 1 {
		t.Fatal("client-requested delete is a clean leave, not an error delete")
	}
}

func TestDispatchStreamDataReplaysJoinStateOnFirstFrame(t *testing.T) {
	s := newTestSequencer(4)
	alice, _ := admit(t, s, "alice", "10.0.0.1")
	bob, bobConn := admit(t, s, "bob", "10.0.0.2")
	s.EnableFlow(alice.UID)
	s.EnableFlow(bob.UID)

	s.Dispatch(alice.UID, wire.MsgStreamData, 0, []byte("x"))

	if len(bobConn.framesOfType(wire.MsgUserInfo)) == 0 {
		t.Fatal("bob should receive USER_INFO replay on alice's first stream frame")
	}
	c, _ := s.table.lookup(alice.UID)
	if !c.IsInitialized() {
		t.Fatal("alice should be marked initialized after her first stream frame")
	}
}
