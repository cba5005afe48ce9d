package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rorelay/rorelay-server/internal/wire"
)

// Config configures a Sequencer.
type Config struct {
	MaxClients      int
	Version         string
	ServerName      string
	Owner           string
	ChatRatePerMin  int
	HeartbeatPeriod time.Duration
	ScriptTickHz    float64
	MotdLines       []string
}

// DefaultConfig returns reasonable starter values.
func DefaultConfig() Config {
	return Config{
		MaxClients:      64,
		Version:         "rorelay 1.0",
		ServerName:      "unnamed server",
		ChatRatePerMin:  20,
		HeartbeatPeriod: 10 * time.Second,
		ScriptTickHz:    1,
	}
}

// Credentials are the handshake values the Listener collects before
// calling Admit.
type Credentials struct {
	Nickname string
	Token    string
	UniqueID string
	IP       string
}

// Sequencer is the central coordinator described in §4.3. It owns the
// client table, admission and disconnection protocol, dispatch/
// broadcast policy, moderation, chat commands, stats, and the killer
// reaper. Construct one with New and pass it by reference to the
// listener, killer, and collaborators — there is deliberately no
// package-level singleton (§9).
type Sequencer struct {
	cfg Config
	log *zerolog.Logger

	table        *table
	bans         *banList
	chat         *chatLog
	kill         *killer
	chatLimiters *chatLimiters

	registry Registry
	auth     AuthResolver
	script   ScriptHost

	version string

	crashCount int64
	leaveCount int64

	startOnce sync.Once
	stopFn    context.CancelFunc
}

// New constructs a Sequencer. banPersist/chatPersist may be nil to run
// without durable storage (e.g. in tests).
func New(cfg Config, log *zerolog.Logger, registry Registry, auth AuthResolver, script ScriptHost, banPersist BanPersister, chatPersist ChatPersister) *Sequencer {
	return &Sequencer{
		cfg:          cfg,
		log:          log,
		table:        newTable(cfg.MaxClients),
		bans:         newBanList(banPersist),
		chat:         newChatLog(chatPersist),
		kill:         newKiller(log),
		chatLimiters: newChatLimiters(cfg.ChatRatePerMin),
		registry:     registry,
		auth:         auth,
		script:       script,
		version:      cfg.Version,
	}
}

// Start runs the killer reaper and, if configured, the registry
// heartbeat loop and the script frame-step loop. It returns
// immediately; all loops run in background goroutines until ctx is
// canceled (§4.3 "initialize... returns when ready to accept").
func (s *Sequencer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.stopFn = cancel

		go s.kill.run()
		go func() {
			<-ctx.Done()
			s.kill.stop()
		}()

		if s.registry != nil {
			go s.runHeartbeatLoop(ctx)
		}
		if s.script != nil {
			go s.runScriptLoop(ctx)
		}
	})
}

// Stop cancels all background loops started by Start.
func (s *Sequencer) Stop() {
	if s.stopFn != nil {
		s.stopFn()
	}
	s.chatLimiters.Stop()
}

func (s *Sequencer) runHeartbeatLoop(ctx context.Context) {
	period := s.cfg.HeartbeatPeriod
	if period <= 0 {
		period = 10 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.registry.Notify(ctx, s.HeartbeatSnapshot()); err != nil && s.log != nil {
				s.log.Warn().Err(err).Msg("registry notify failed")
			}
		}
	}
}

func (s *Sequencer) runScriptLoop(ctx context.Context) {
	hz := s.cfg.ScriptTickHz
	if hz <= 0 {
		hz = 1
	}
	interval := time.Duration(float64(time.Second) / hz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.script.FrameStep(now.Sub(last).Seconds())
			last = now
		}
	}
}

// Admit performs the admission protocol of §4.3: reject with FULL if
// the table is at capacity, reject with BANNED if the peer IP is
// listed, resolve a unique nickname, assign uid/slot/colour, attach the
// connection, and broadcast USER_JOIN. The returned Client has
// FlowEnabled=false until EnableFlow is called.
func (s *Sequencer) Admit(conn connHandle, creds Credentials) (*Client, error) {
	if s.bans.isBanned(creds.IP) {
		return nil, ErrBanned
	}

	authFlags, authNick := AuthNone, creds.Nickname
	if s.auth != nil {
		if flags, nick, err := s.auth.Resolve(creds.Token); err == nil {
			authFlags = flags
			if nick != "" {
				authNick = nick
			}
		}
	}
	if authFlags&AuthBanned != 0 {
		return nil, ErrBanned
	}

	c := NewClient(creds.UniqueID, conn)
	c.IP = creds.IP
	c.AuthFlags = authFlags

	if !s.table.tryAdmit(c, authNick) {
		return nil, ErrServerFull
	}

	c.Queue(uint32(wire.MsgWelcome), c.UID, 0, encodeColour(c.ColourNumber))
	s.broadcastJoin(c)

	if s.auth != nil {
		s.auth.EmitEvent(c.UniqueID, AuthEventJoin, c.Nickname, c.Vehicle)
	}
	if s.script != nil {
		s.script.PlayerAdded(c.UID, c.Nickname)
	}
	if s.log != nil {
		s.log.Info().Uint32("uid", c.UID).Str("nick", c.Nickname).Str("ip", c.IP).Msg("client admitted")
	}
	return c, nil
}

func encodeColour(n int) []byte {
	buf := make([]byte, 4)
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
	buf[2] = byte(n >> 16)
	buf[3] = byte(n >> 24)
	return buf
}

func (s *Sequencer) broadcastJoin(joined *Client) {
	info := wire.JoinInfo{
		Version:    1,
		SlotID:     uint32(joined.Slot),
		ColourNum:  uint32(joined.ColourNumber),
		AuthStatus: uint32(joined.AuthFlags),
		Nickname:   wire.PutNickname(joined.Nickname),
	}
	payload := wire.EncodeJoinInfo(info)
	s.table.forEach(func(c *Client) {
		if c.UID == joined.UID {
			return
		}
		c.Queue(uint32(wire.MsgUserJoin), joined.UID, 0, payload)
	})
}

// EnableFlow marks uid as flow-enabled once the handshake completes,
// allowing stream traffic (§3 Lifecycle). It sends the configured MOTD
// lines to the new client and triggers print_stats.
func (s *Sequencer) EnableFlow(uid uint32) {
	c, ok := s.table.lookup(uid)
	if !ok {
		return
	}
	c.mu.Lock()
	c.FlowEnabled = true
	c.mu.Unlock()

	for _, line := range s.cfg.MotdLines {
		s.ServerSay(line, uid, 1)
	}

	s.printStats()
}

// Disconnect removes uid from the table, broadcasts DELETE (if
// isError) or USER_LEAVE, enqueues the victim on the killer, and emits
// the script/auth lifecycle callbacks (§4.3).
func (s *Sequencer) Disconnect(uid uint32, reason string, isError bool) {
	c, ok := s.table.remove(uid)
	if !ok {
		return // tolerant of uids already reaped (§7)
	}

	if isError {
		atomic.AddInt64(&s.crashCount, 1)
		s.broadcast(c, wire.MsgDelete, 0, []byte(reason), modeBroadcastAll)
	} else {
		atomic.AddInt64(&s.leaveCount, 1)
		s.broadcast(c, wire.MsgUserLeave, 0, []byte(reason), modeBroadcastAll)
	}

	s.chatLimiters.drop(uid)

	if s.auth != nil {
		kind := AuthEventLeave
		if isError {
			kind = AuthEventCrash
		}
		s.auth.EmitEvent(c.UniqueID, kind, c.Nickname, c.Vehicle)
	}
	if s.script != nil {
		s.script.PlayerDeleted(uid, c.Nickname)
	}

	if victim, ok := any(c.conn).(Victim); ok {
		s.kill.enqueue(killTask{client: c, victim: victim, reason: reason})
	}

	if s.log != nil {
		s.log.Info().Uint32("uid", uid).Bool("error", isError).Str("reason", reason).Msg("client disconnected")
	}
}

// Kick disconnects uid with a "kicked by <mod>: <msg>" reason. Requires
// modUID to hold MOD or ADMIN.
func (s *Sequencer) Kick(uid, modUID uint32, msg string) error {
	mod, ok := s.table.lookup(modUID)
	if !ok {
		return ErrUnknownUID
	}
	if !mod.AuthFlags.IsModOrAdmin() {
		return ErrNotAuthorized
	}
	target, ok := s.table.lookup(uid)
	if !ok {
		return ErrUnknownUID
	}
	reason := fmt.Sprintf("kicked by %s: %s", mod.Nickname, msg)
	s.Disconnect(target.UID, reason, false)
	return nil
}

// Ban appends a ban record (capturing the IP from the live client) and
// then kicks.
func (s *Sequencer) Ban(uid, modUID uint32, msg string) error {
	mod, ok := s.table.lookup(modUID)
	if !ok {
		return ErrUnknownUID
	}
	if !mod.AuthFlags.IsModOrAdmin() {
		return ErrNotAuthorized
	}
	target, ok := s.table.lookup(uid)
	if !ok {
		return ErrUnknownUID
	}

	s.bans.add(BanRecord{
		UID:          target.UID,
		IP:           target.IP,
		Nickname:     target.Nickname,
		BannedByNick: mod.Nickname,
		Message:      msg,
	})

	reason := fmt.Sprintf("banned: %s", msg)
	s.Disconnect(target.UID, reason, false)
	return nil
}

// Unban removes the ban record whose uid matches, reporting whether a
// record was removed. Idempotent: calling it again returns false.
func (s *Sequencer) Unban(uid uint32) bool {
	return s.bans.removeByUID(uid)
}

// ServerSay enqueues a CHAT frame with source uid -1 to either all
// flow-enabled clients (uid == 0xFFFFFFFF, i.e. -1 as uint32) or one.
// The message is prefixed "SERVER: ".
func (s *Sequencer) ServerSay(msg string, uid uint32, msgType int) {
	payload := []byte("SERVER: " + msg)
	const broadcastUID = ^uint32(0)

	if uid == broadcastUID {
		s.table.forEach(func(c *Client) {
			if c.FlowEnabled {
				c.Queue(uint32(wire.MsgChat), broadcastUID, 0, payload)
			}
		})
		return
	}

	c, ok := s.table.lookup(uid)
	if !ok {
		return
	}
	c.Queue(uint32(wire.MsgChat), broadcastUID, 0, payload)
}

// SendGameCommand enqueues GAME_CMD with source uid -1 to target.
func (s *Sequencer) SendGameCommand(uid uint32, cmd string) {
	const broadcastUID = ^uint32(0)
	c, ok := s.table.lookup(uid)
	if !ok {
		return
	}
	c.Queue(uint32(wire.MsgGameCmd), broadcastUID, 0, []byte(cmd))
	if s.script != nil {
		s.script.GameCmd(uid, cmd)
	}
}

// HeartbeatSnapshot returns the textual registry payload of §6: a
// challenge token line, a version line, the client count, then one
// line per client: index;vehicle;nickname;x,y,z;ip;unique_id;auth_chars.
func (s *Sequencer) HeartbeatSnapshot() string {
	clients := s.table.snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", heartbeatChallenge())
	b.WriteString("version4\n")
	fmt.Fprintf(&b, "%d\n", len(clients))

	for i, c := range clients {
		pos := c.PositionSnapshot()
		fmt.Fprintf(&b, "%d;%s;%s;%g,%g,%g;%s;%s;%s\n",
			i, c.Vehicle, c.Nickname, pos.X, pos.Y, pos.Z, c.IP, c.UniqueID, c.AuthFlags.Chars())
	}
	return b.String()
}

func heartbeatChallenge() string {
	return fmt.Sprintf("chal-%d", time.Now().UnixNano())
}

// ChatHistory returns a snapshot of the 500-entry ring (§4.3).
func (s *Sequencer) ChatHistory() []ChatEntry {
	return s.chat.snapshot()
}

// printStats logs a one-line summary of table occupancy and crash/leave
// counters, triggered after every EnableFlow (§4.3).
func (s *Sequencer) printStats() {
	if s.log == nil {
		return
	}
	s.log.Debug().
		Int("clients", s.table.size()).
		Int("max_clients", s.cfg.MaxClients).
		Int64("crashes", atomic.LoadInt64(&s.crashCount)).
		Int64("leaves", atomic.LoadInt64(&s.leaveCount)).
		Msg("stats")
}

// ClientCount returns the current table occupancy.
func (s *Sequencer) ClientCount() int {
	return s.table.size()
}

// Snapshot exposes a read-only client listing for the status API.
func (s *Sequencer) Snapshot() []*Client {
	return s.table.snapshot()
}
