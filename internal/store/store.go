// Package store defines the durable persistence contract the
// sequencer's ban list and chat log use, mirroring core.BanPersister
// and core.ChatPersister so any implementation here plugs directly
// into core.New without an adapter.
package store

import "github.com/rorelay/rorelay-server/internal/core"

// Store aggregates ban and chat persistence plus lifecycle.
type Store interface {
	SaveBan(core.BanRecord) error
	DeleteBan(ip string) error
	LoadBans() ([]core.BanRecord, error)

	AppendChat(core.ChatEntry) error

	Close() error
}
