package core

import "sync"

// BanRecord is one entry in the ban list.
type BanRecord struct {
	UID          uint32
	IP           string
	Nickname     string
	BannedByNick string
	Message      string
}

// BanPersister is the narrow persistence surface the ban list uses to
// survive process restarts. internal/store implements it; core never
// depends on a concrete storage backend.
type BanPersister interface {
	SaveBan(BanRecord) error
	DeleteBan(ip string) error
	LoadBans() ([]BanRecord, error)
}

// banList is a value-owned list keyed by ip (§9: "Ban list as vector of
// pointers becomes a value-owned list keyed by ip"). Lookups during
// admission are O(n), acceptable at this scale.
type banList struct {
	mu      sync.Mutex
	records []BanRecord
	persist BanPersister
}

func newBanList(persist BanPersister) *banList {
	b := &banList{persist: persist}
	if persist != nil {
		if loaded, err := persist.LoadBans(); err == nil {
			b.records = loaded
		}
	}
	return b
}

// add appends a ban record, persisting it if a store is configured.
func (b *banList) add(rec BanRecord) {
	b.mu.Lock()
	b.records = append(b.records, rec)
	b.mu.Unlock()

	if b.persist != nil {
		_ = b.persist.SaveBan(rec)
	}
}

// isBanned reports whether ip matches a ban record.
func (b *banList) isBanned(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.records {
		if r.IP == ip {
			return true
		}
	}
	return false
}

// removeByUID deletes the ban record whose UID matches, reporting
// whether a record was removed. unban(uid) is idempotent: calling it
// again on an absent uid returns false and leaves the list unchanged.
func (b *banList) removeByUID(uid uint32) bool {
	b.mu.Lock()
	var removedIP string
	removed := false
	for i, r := range b.records {
		if r.UID == uid {
			removedIP = r.IP
			b.records = append(b.records[:i], b.records[i+1:]...)
			removed = true
			break
		}
	}
	b.mu.Unlock()

	if removed && b.persist != nil {
		_ = b.persist.DeleteBan(removedIP)
	}
	return removed
}

// snapshot returns a copy of the current ban list.
func (b *banList) snapshot() []BanRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BanRecord, len(b.records))
	copy(out, b.records)
	return out
}
