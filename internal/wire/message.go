// Package wire implements the fixed-layout framing used by the vehicle
// relay protocol: a 16-byte little-endian header followed by an opaque
// payload.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MsgType identifies the kind of a framed message.
type MsgType uint32

const (
	MsgHello          MsgType = 1000
	MsgWelcome        MsgType = 1001
	MsgFull           MsgType = 1002
	MsgBanned         MsgType = 1003
	MsgUserJoin       MsgType = 1004
	MsgUserLeave      MsgType = 1005
	MsgUserInfo       MsgType = 1006
	MsgGameCmd        MsgType = 1007
	MsgChat           MsgType = 1008
	MsgPrivChat       MsgType = 1009
	MsgStreamRegister MsgType = 1010
	MsgStreamData     MsgType = 1011
	MsgVehicleData    MsgType = 1012
	MsgDelete         MsgType = 1013
	MsgFlowEnable     MsgType = 1014
	MsgCredentials    MsgType = 1015
)

func (t MsgType) String() string {
	switch t {
	case MsgHello:
		return "HELLO"
	case MsgWelcome:
		return "WELCOME"
	case MsgFull:
		return "FULL"
	case MsgBanned:
		return "BANNED"
	case MsgUserJoin:
		return "USER_JOIN"
	case MsgUserLeave:
		return "USER_LEAVE"
	case MsgUserInfo:
		return "USER_INFO"
	case MsgGameCmd:
		return "GAME_CMD"
	case MsgChat:
		return "CHAT"
	case MsgPrivChat:
		return "PRIVCHAT"
	case MsgStreamRegister:
		return "STREAM_REGISTER"
	case MsgStreamData:
		return "STREAM_DATA"
	case MsgVehicleData:
		return "VEHICLE_DATA"
	case MsgDelete:
		return "DELETE"
	case MsgFlowEnable:
		return "FLOW_ENABLE"
	case MsgCredentials:
		return "CREDENTIALS"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// HeaderSize is the on-wire size of a frame header in bytes:
// type, source_uid, stream_id, size — four little-endian uint32s.
const HeaderSize = 16

// MaxFrameSize is the hard cap on a payload's length. Frames claiming a
// larger size are rejected as Malformed before any payload bytes are
// read.
const MaxFrameSize = 8 * 1024 * 1024

// ErrMalformed is returned when a frame's declared size exceeds
// MaxFrameSize or the stream ends before a full frame is read.
var ErrMalformed = errors.New("wire: malformed frame")

// Frame is one decoded message: header fields plus its payload.
type Frame struct {
	Type      MsgType
	SourceUID uint32
	StreamID  uint32
	Payload   []byte
}

// Encode writes f to w as a header followed by its payload.
func Encode(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxFrameSize {
		return ErrMalformed
	}
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(f.Type))
	binary.LittleEndian.PutUint32(hdr[4:8], f.SourceUID)
	binary.LittleEndian.PutUint32(hdr[8:12], f.StreamID)
	binary.LittleEndian.PutUint32(hdr[12:16], uint32(len(f.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if len(f.Payload) == 0 {
		return nil
	}
	_, err := w.Write(f.Payload)
	return err
}

// Decode reads one frame from r. It returns ErrMalformed if the
// declared payload size exceeds MaxFrameSize, and wraps io.EOF/
// io.ErrUnexpectedEOF as ErrMalformed when the stream ends mid-frame.
func Decode(r io.Reader) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	size := binary.LittleEndian.Uint32(hdr[12:16])
	if size > MaxFrameSize {
		return Frame{}, ErrMalformed
	}

	f := Frame{
		Type:      MsgType(binary.LittleEndian.Uint32(hdr[0:4])),
		SourceUID: binary.LittleEndian.Uint32(hdr[4:8]),
		StreamID:  binary.LittleEndian.Uint32(hdr[8:12]),
	}
	if size == 0 {
		return f, nil
	}

	f.Payload = make([]byte, size)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return f, nil
}

// NicknameSize is the fixed on-wire width of a nickname field.
const NicknameSize = 20

// UniqueIDMax is the fixed on-wire width of the handshake's unique_id
// field.
const UniqueIDMax = 60

// StreamNameSize is the fixed on-wire width of a stream registration name.
const StreamNameSize = 128

// JoinInfo is the fixed USER_JOIN/USER_INFO payload layout:
// version, slotid, colournum, authstatus, nickname(20B).
type JoinInfo struct {
	Version    uint32
	SlotID     uint32
	ColourNum  uint32
	AuthStatus uint32
	Nickname   [NicknameSize]byte
}

// EncodeJoinInfo serializes a JoinInfo to its wire layout.
func EncodeJoinInfo(j JoinInfo) []byte {
	buf := make([]byte, 16+NicknameSize)
	binary.LittleEndian.PutUint32(buf[0:4], j.Version)
	binary.LittleEndian.PutUint32(buf[4:8], j.SlotID)
	binary.LittleEndian.PutUint32(buf[8:12], j.ColourNum)
	binary.LittleEndian.PutUint32(buf[12:16], j.AuthStatus)
	copy(buf[16:], j.Nickname[:])
	return buf
}

// DecodeJoinInfo parses a JoinInfo from its wire layout.
func DecodeJoinInfo(b []byte) (JoinInfo, error) {
	if len(b) < 16+NicknameSize {
		return JoinInfo{}, ErrMalformed
	}
	var j JoinInfo
	j.Version = binary.LittleEndian.Uint32(b[0:4])
	j.SlotID = binary.LittleEndian.Uint32(b[4:8])
	j.ColourNum = binary.LittleEndian.Uint32(b[8:12])
	j.AuthStatus = binary.LittleEndian.Uint32(b[12:16])
	copy(j.Nickname[:], b[16:16+NicknameSize])
	return j, nil
}

// PutNickname copies name into a fixed NicknameSize buffer, truncating
// to fit; it never writes a partial multi-byte rune boundary check since
// nicknames are treated as opaque bytes on the wire.
func PutNickname(name string) [NicknameSize]byte {
	var out [NicknameSize]byte
	b := []byte(name)
	if len(b) > NicknameSize {
		b = b[:NicknameSize]
	}
	copy(out[:], b)
	return out
}

// HelloVersion is the only handshake version this codec understands.
const HelloVersion = 1

// EncodeHello serializes the handshake's opening version frame.
func EncodeHello(version uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, version)
	return buf
}

// DecodeHello parses the handshake's opening version frame.
func DecodeHello(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, ErrMalformed
	}
	return binary.LittleEndian.Uint32(b), nil
}

// CredentialsPayload is the handshake's second frame: a fixed
// nickname/unique_id pair followed by an opaque, variable-length auth
// token (§3 "unique_id ... opaque token supplied at handshake").
type CredentialsPayload struct {
	Nickname [NicknameSize]byte
	UniqueID [UniqueIDMax]byte
	Token    []byte
}

// EncodeCredentials serializes a CredentialsPayload to its wire layout.
func EncodeCredentials(c CredentialsPayload) []byte {
	buf := make([]byte, NicknameSize+UniqueIDMax+len(c.Token))
	copy(buf[0:NicknameSize], c.Nickname[:])
	copy(buf[NicknameSize:NicknameSize+UniqueIDMax], c.UniqueID[:])
	copy(buf[NicknameSize+UniqueIDMax:], c.Token)
	return buf
}

// DecodeCredentials parses a CredentialsPayload from its wire layout.
func DecodeCredentials(b []byte) (CredentialsPayload, error) {
	const fixed = NicknameSize + UniqueIDMax
	if len(b) < fixed {
		return CredentialsPayload{}, ErrMalformed
	}
	var c CredentialsPayload
	copy(c.Nickname[:], b[0:NicknameSize])
	copy(c.UniqueID[:], b[NicknameSize:fixed])
	if len(b) > fixed {
		c.Token = append([]byte(nil), b[fixed:]...)
	}
	return c, nil
}

// TrimNulPadded returns b up to its first NUL byte, or all of b if it
// has none.
func TrimNulPadded(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// SanitizeStreamName converts spaces to NUL and force-terminates the
// result within StreamNameSize bytes, as required for STREAM_REGISTER
// names.
func SanitizeStreamName(name string) [StreamNameSize]byte {
	var out [StreamNameSize]byte
	b := []byte(name)
	if len(b) > StreamNameSize-1 {
		b = b[:StreamNameSize-1]
	}
	for i, c := range b {
		if c == ' ' {
			out[i] = 0
		} else {
			out[i] = c
		}
	}
	// out is zero-initialized, so the terminator and any trailing bytes
	// are already NUL.
	return out
}
