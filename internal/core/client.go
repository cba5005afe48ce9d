package core

import (
	"sync"
	"time"
)

// AuthFlags is a bitmask over a client's authorization level. Bit
// values are an external wire contract (see the JoinInfo.AuthStatus
// field) and must not be renumbered.
type AuthFlags uint32

const (
	AuthNone   AuthFlags = 0x00
	AuthAdmin  AuthFlags = 0x01
	AuthMod    AuthFlags = 0x02
	AuthRanked AuthFlags = 0x04
	AuthBot    AuthFlags = 0x08
	AuthBanned AuthFlags = 0x10
)

// Chars renders the set bits as the registry heartbeat's auth_chars
// column: a concatenation of A, M, R, B for ADMIN, MOD, RANKED, BOT.
func (f AuthFlags) Chars() string {
	var b [4]byte
	n := 0
	if f&AuthAdmin != 0 {
		b[n] = 'A'
		n++
	}
	if f&AuthMod != 0 {
		b[n] = 'M'
		n++
	}
	if f&AuthRanked != 0 {
		b[n] = 'R'
		n++
	}
	if f&AuthBot != 0 {
		b[n] = 'B'
		n++
	}
	return string(b[:n])
}

func (f AuthFlags) IsModOrAdmin() bool {
	return f&(AuthMod|AuthAdmin) != 0
}

// Status is the lifecycle state of a client-table slot.
type Status int

const (
	StatusFree Status = iota
	StatusBusy
	StatusUsed
)

// StreamType identifies the kind of data carried by a registered
// stream.
type StreamType uint32

const (
	StreamTruck     StreamType = 0
	StreamCharacter StreamType = 1
	StreamAITraffic StreamType = 2
	StreamChat      StreamType = 3
)

// MaxStreamsPerClient is the per-client cap on registered streams.
// Registrations beyond this are dropped silently.
const MaxStreamsPerClient = 20

// StreamRegistration is one entry in a client's stream table.
type StreamRegistration struct {
	Type   StreamType
	Name   [128]byte
	Status int
}

// StreamTraffic tracks cumulative byte counters for one stream.
type StreamTraffic struct {
	IncomingBytes uint64
	OutgoingBytes uint64

	lastMinuteIn  uint64
	lastMinuteOut uint64
	snapshotAt    time.Time
}

// Position is a 3D float hint used only for registry reporting.
type Position struct {
	X, Y, Z float32
}

// Client is the per-session state the Sequencer tracks for one
// connected peer.
type Client struct {
	mu sync.Mutex

	UID          uint32
	Slot         int
	Nickname     string
	UniqueID     string
	ColourNumber int
	AuthFlags    AuthFlags
	Status       Status

	FlowEnabled bool
	Initialized bool

	IP string

	streams map[uint32]*StreamRegistration
	traffic map[uint32]*StreamTraffic

	Position Position

	BeamBuffer []byte

	// Vehicle is the display name reported in the registry heartbeat;
	// it is the name of the client's first registered truck stream.
	Vehicle string

	conn connHandle
}

// connHandle is the narrow surface the core needs from a live
// connection: enough to queue outbound frames and to learn the peer's
// address for ban records. The concrete Connection type implements it;
// core never imports the transport package, avoiding a cycle.
type connHandle interface {
	QueueFrame(msgType uint32, sourceUID, streamID uint32, payload []byte) bool
	RemoteIP() string
}

// NewClient constructs a pending client record prior to admission.
func NewClient(uniqueID string, conn connHandle) *Client {
	return &Client{
		UniqueID: uniqueID,
		Status:   StatusUsed,
		streams:  make(map[uint32]*StreamRegistration),
		traffic:  make(map[uint32]*StreamTraffic),
		conn:     conn,
	}
}

// RegisterStream records a stream registration, enforcing the
// per-client cap. Returns false if the cap is already reached and the
// registration was dropped.
func (c *Client) RegisterStream(streamID uint32, reg StreamRegistration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.streams[streamID]; !exists && len(c.streams) >= MaxStreamsPerClient {
		return false
	}
	c.streams[streamID] = &reg
	c.traffic[streamID] = &StreamTraffic{snapshotAt: time.Now()}
	return true
}

// Stream returns the registration for streamID, if any.
func (c *Client) Stream(streamID uint32) (StreamRegistration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.streams[streamID]
	if !ok {
		return StreamRegistration{}, false
	}
	return *reg, true
}

// Streams returns a snapshot of all registered stream IDs.
func (c *Client) Streams() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint32, 0, len(c.streams))
	for id := range c.streams {
		ids = append(ids, id)
	}
	return ids
}

// AddIncoming increments the incoming byte counter for streamID,
// creating its traffic record if this is the first traffic seen for it
// (e.g. VEHICLE_DATA or CHAT on a stream that was never registered).
func (c *Client) AddIncoming(streamID uint32, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.trafficLocked(streamID)
	t.IncomingBytes += uint64(n)
}

// AddOutgoing increments the outgoing byte counter for streamID.
func (c *Client) AddOutgoing(streamID uint32, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.trafficLocked(streamID)
	t.OutgoingBytes += uint64(n)
}

func (c *Client) trafficLocked(streamID uint32) *StreamTraffic {
	t, ok := c.traffic[streamID]
	if !ok {
		t = &StreamTraffic{snapshotAt: time.Now()}
		c.traffic[streamID] = t
	}
	return t
}

// SetPosition updates the cached position hint used for registry
// reporting.
func (c *Client) SetPosition(p Position) {
	c.mu.Lock()
	c.Position = p
	c.mu.Unlock()
}

// PositionSnapshot returns the last cached position.
func (c *Client) PositionSnapshot() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Position
}

// SetInitialized marks that this client has sent its first stream
// data and the join-state replay has happened.
func (c *Client) SetInitialized() {
	c.mu.Lock()
	c.Initialized = true
	c.mu.Unlock()
}

// IsInitialized reports whether the join-state replay has already run
// for this client.
func (c *Client) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Initialized
}

// Queue forwards a frame to this client's connection, returning false
// if it was dropped for backpressure. A nil conn (used in tests) always
// reports success without doing anything.
func (c *Client) Queue(msgType uint32, sourceUID, streamID uint32, payload []byte) bool {
	if c.conn == nil {
		return true
	}
	return c.conn.QueueFrame(msgType, sourceUID, streamID, payload)
}
