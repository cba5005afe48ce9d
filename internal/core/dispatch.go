package core

import (
	"encoding/binary"
	"math"

	"github.com/rorelay/rorelay-server/internal/wire"
)

// publishMode is the four-valued dispatch policy of §4.4.
type publishMode int

const (
	modeDrop             publishMode = 0
	modeBroadcastExceptSender publishMode = 1
	modeAdminOnly        publishMode = 2
	modeBroadcastAll     publishMode = 3
)

// Dispatch classifies and forwards one inbound message from sender uid,
// per §4.4. It is the single entry point the Receiver pipeline calls.
func (s *Sequencer) Dispatch(uid uint32, msgType wire.MsgType, streamID uint32, payload []byte) {
	sender, ok := s.table.lookup(uid)
	if !ok {
		// Tolerant of lookups for uids that have just been reaped (§7).
		return
	}
	if !sender.FlowEnabled && msgType != wire.MsgFlowEnable {
		return
	}

	switch msgType {
	case wire.MsgFlowEnable:
		s.EnableFlow(uid)
	case wire.MsgStreamData:
		s.handleStreamData(sender, streamID, payload)
	case wire.MsgStreamRegister:
		s.handleStreamRegister(sender, streamID, payload)
	case wire.MsgChat:
		s.handleChat(sender, streamID, payload)
	case wire.MsgPrivChat:
		s.handlePrivChat(sender, streamID, payload)
	case wire.MsgVehicleData:
		s.handleVehicleData(sender, streamID, payload)
	case wire.MsgDelete:
		s.Disconnect(uid, "client requested delete", false)
	default:
		if s.log != nil {
			s.log.Warn().Uint32("uid", uid).Str("type", msgType.String()).Msg("dispatch: unknown message type")
		}
	}
}

func (s *Sequencer) handleStreamData(sender *Client, streamID uint32, payload []byte) {
	if !sender.IsInitialized() {
		s.replayJoinState(sender)
		sender.SetInitialized()
	}
	sender.AddIncoming(streamID, len(payload))
	s.broadcastExceptSender(sender, wire.MsgStreamData, streamID, payload)
}

// replayJoinState broadcasts USER_INFO for every existing client to the
// sender and the sender to every other client, so every peer's stream
// tables converge (§4.4).
func (s *Sequencer) replayJoinState(sender *Client) {
	s.table.forEach(func(other *Client) {
		if other.UID == sender.UID {
			return
		}
		s.sendUserInfo(sender, other)
		s.sendUserInfo(other, sender)

		for _, streamID := range other.Streams() {
			reg, ok := other.Stream(streamID)
			if !ok {
				continue
			}
			sender.Queue(uint32(wire.MsgStreamRegister), other.UID, streamID, encodeStreamRegister(reg))
		}
	})
}

func (s *Sequencer) sendUserInfo(to, about *Client) {
	info := wire.JoinInfo{
		Version:    1,
		SlotID:     uint32(about.Slot),
		ColourNum:  uint32(about.ColourNumber),
		AuthStatus: uint32(about.AuthFlags),
		Nickname:   wire.PutNickname(about.Nickname),
	}
	to.Queue(uint32(wire.MsgUserInfo), about.UID, 0, wire.EncodeJoinInfo(info))
}

func (s *Sequencer) handleStreamRegister(sender *Client, streamID uint32, payload []byte) {
	reg, ok := decodeStreamRegister(payload)
	if !ok {
		return
	}
	reg.Name = wire.SanitizeStreamName(string(trimNulName(reg.Name)))
	if !sender.RegisterStream(streamID, reg) {
		return // per-client cap exceeded; drop silently (§4.4, §7)
	}
	if reg.Type == StreamTruck {
		sender.mu.Lock()
		if sender.Vehicle == "" {
			sender.Vehicle = string(trimNulName(reg.Name))
		}
		sender.mu.Unlock()
	}
	sender.AddIncoming(streamID, len(payload))
	s.broadcastExceptSender(sender, wire.MsgStreamRegister, streamID, encodeStreamRegister(reg))
}

func (s *Sequencer) handleChat(sender *Client, streamID uint32, payload []byte) {
	text := string(payload)
	isCommand := len(text) > 0 && text[0] == '!'

	mode := modeBroadcastAll
	if isCommand {
		mode = modeDrop
	}
	if s.script != nil {
		if override := s.script.PlayerChat(sender.UID, text); override > 0 {
			mode = publishMode(override)
		}
	}

	// The script hook runs, and overrides mode, before branching on the
	// "!" prefix: a script can still force a command message to
	// broadcast even though it's dropped by default.
	if isCommand {
		s.handleChatCommand(sender, text)
	}

	s.chat.add(sender.UID, sender.Nickname, text)

	if mode == modeDrop {
		return
	}
	sender.AddIncoming(streamID, len(payload))
	s.broadcast(sender, wire.MsgChat, 0, payload, mode)
}

func (s *Sequencer) handlePrivChat(sender *Client, streamID uint32, payload []byte) {
	if len(payload) < 4 {
		return
	}
	targetUID := binary.LittleEndian.Uint32(payload[:4])
	text := payload[4:]

	target, ok := s.table.lookup(targetUID)
	if !ok {
		return
	}
	sender.AddIncoming(streamID, len(payload))
	target.Queue(uint32(wire.MsgChat), sender.UID, 0, text)
	target.AddOutgoing(0, len(text))
}

func (s *Sequencer) handleVehicleData(sender *Client, streamID uint32, payload []byte) {
	// "first 12 bytes after a fixed prefix are three little-endian
	// float32" — the prefix (an opaque oob_t in the original source) is
	// not specified further than its length.
	const prefixLen = 8
	if len(payload) >= prefixLen+12 {
		x := math.Float32frombits(binary.LittleEndian.Uint32(payload[prefixLen : prefixLen+4]))
		y := math.Float32frombits(binary.LittleEndian.Uint32(payload[prefixLen+4 : prefixLen+8]))
		z := math.Float32frombits(binary.LittleEndian.Uint32(payload[prefixLen+8 : prefixLen+12]))
		sender.SetPosition(Position{X: x, Y: y, Z: z})
	}
	sender.AddIncoming(streamID, len(payload))
	s.broadcastExceptSender(sender, wire.MsgVehicleData, streamID, payload)
}

// broadcastExceptSender implements mode 1.
func (s *Sequencer) broadcastExceptSender(sender *Client, msgType wire.MsgType, streamID uint32, payload []byte) {
	s.broadcast(sender, msgType, streamID, payload, modeBroadcastExceptSender)
}

// broadcast fans payload out to the recipients selected by mode.
func (s *Sequencer) broadcast(sender *Client, msgType wire.MsgType, streamID uint32, payload []byte, mode publishMode) {
	if mode == modeDrop {
		return
	}
	s.table.forEach(func(c *Client) {
		if !c.FlowEnabled {
			return
		}
		switch mode {
		case modeBroadcastExceptSender:
			if c.UID == sender.UID {
				return
			}
		case modeAdminOnly:
			if c.AuthFlags&AuthAdmin == 0 {
				return
			}
		case modeBroadcastAll:
			// everyone, including sender
		}
		if c.Queue(uint32(msgType), sender.UID, streamID, payload) {
			c.AddOutgoing(streamID, len(payload))
		}
	})
}

func encodeStreamRegister(reg StreamRegistration) []byte {
	buf := make([]byte, 4+128+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(reg.Type))
	copy(buf[4:132], reg.Name[:])
	binary.LittleEndian.PutUint32(buf[132:136], uint32(reg.Status))
	return buf
}

func decodeStreamRegister(payload []byte) (StreamRegistration, bool) {
	if len(payload) < 4+128+4 {
		return StreamRegistration{}, false
	}
	var reg StreamRegistration
	reg.Type = StreamType(binary.LittleEndian.Uint32(payload[0:4]))
	copy(reg.Name[:], payload[4:132])
	reg.Status = int(int32(binary.LittleEndian.Uint32(payload[132:136])))
	return reg, true
}

func trimNulName(name [128]byte) []byte {
	for i, b := range name {
		if b == 0 {
			return name[:i]
		}
	}
	return name[:]
}
