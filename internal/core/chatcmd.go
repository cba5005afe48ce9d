package core

import (
	"fmt"
	"strconv"
	"strings"
)

// handleChatCommand intercepts a message whose first character is "!"
// (§4.5). All replies are unicast via ServerSay, which prefixes
// "SERVER: ".
func (s *Sequencer) handleChatCommand(sender *Client, text string) {
	if s.chatLimiters != nil && !s.chatLimiters.allow(sender.UID) {
		return
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "!version":
		s.ServerSay(s.version, sender.UID, 0)
	case "!list":
		s.ServerSay(s.renderClientList(), sender.UID, 0)
	case "!bans":
		s.ServerSay(s.renderBanList(), sender.UID, 0)
	case "!kick":
		s.handleKickCommand(sender, args)
	case "!ban":
		s.handleBanCommand(sender, args)
	case "!unban":
		s.handleUnbanCommand(sender, args)
	default:
		s.ServerSay("unknown command: "+cmd, sender.UID, 0)
	}
}

func (s *Sequencer) handleKickCommand(sender *Client, args []string) {
	if !sender.AuthFlags.IsModOrAdmin() {
		s.ServerSay(ErrNotAuthorized.Error(), sender.UID, 0)
		return
	}
	uid, msg, ok := parseUIDAndMessage(args)
	if !ok {
		s.ServerSay("usage: !kick <uid> <msg>", sender.UID, 0)
		return
	}
	if err := s.Kick(uid, sender.UID, msg); err != nil {
		s.ServerSay(err.Error(), sender.UID, 0)
	}
}

func (s *Sequencer) handleBanCommand(sender *Client, args []string) {
	if !sender.AuthFlags.IsModOrAdmin() {
		s.ServerSay(ErrNotAuthorized.Error(), sender.UID, 0)
		return
	}
	uid, msg, ok := parseUIDAndMessage(args)
	if !ok {
		s.ServerSay("usage: !ban <uid> <msg>", sender.UID, 0)
		return
	}
	if err := s.Ban(uid, sender.UID, msg); err != nil {
		s.ServerSay(err.Error(), sender.UID, 0)
	}
}

func (s *Sequencer) handleUnbanCommand(sender *Client, args []string) {
	if !sender.AuthFlags.IsModOrAdmin() {
		s.ServerSay(ErrNotAuthorized.Error(), sender.UID, 0)
		return
	}
	if len(args) != 1 {
		s.ServerSay("usage: !unban <uid>", sender.UID, 0)
		return
	}
	uid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		s.ServerSay("usage: !unban <uid>", sender.UID, 0)
		return
	}
	if removed := s.Unban(uint32(uid)); !removed {
		s.ServerSay(ErrUnknownUID.Error(), sender.UID, 0)
		return
	}
	s.ServerSay(fmt.Sprintf("unbanned %d", uid), sender.UID, 0)
}

func parseUIDAndMessage(args []string) (uint32, string, bool) {
	if len(args) < 2 {
		return 0, "", false
	}
	uid, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, "", false
	}
	return uint32(uid), strings.Join(args[1:], " "), true
}

func (s *Sequencer) renderClientList() string {
	var b strings.Builder
	b.WriteString("uid | auth | nick | vehicle\n")
	for _, c := range s.table.snapshot() {
		fmt.Fprintf(&b, "%d | %s | %s | %s\n", c.UID, c.AuthFlags.Chars(), c.Nickname, c.Vehicle)
	}
	return b.String()
}

func (s *Sequencer) renderBanList() string {
	var b strings.Builder
	b.WriteString("uid | ip | nick | banned_by | msg\n")
	for _, r := range s.bans.snapshot() {
		fmt.Fprintf(&b, "%d | %s | %s | %s | %s\n", r.UID, r.IP, r.Nickname, r.BannedByNick, r.Message)
	}
	return b.String()
}
