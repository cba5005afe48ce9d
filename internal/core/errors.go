package core

import "errors"

// Admission errors (§7): reported to the peer as a dedicated control
// frame, then the socket is closed. No table side effects.
var (
	ErrServerFull    = errors.New("server full")
	ErrBanned        = errors.New("banned")
	ErrBadHandshake  = errors.New("bad handshake")
)

// Moderation errors (§7): surfaced as a chat reply, never disconnect
// the caller.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrUnknownUID    = errors.New("unknown uid")
)
