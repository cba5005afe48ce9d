// Package sqlite backs store.Store with a SQLite database, the
// process's own durable record of bans and chat history. It is not
// synchronised with any flat file: the ban list is not read from or
// written to server.ban_file, and the auth cache lives only in its own
// flat file.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rorelay/rorelay-server/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS bans (
	ip             TEXT PRIMARY KEY,
	uid            INTEGER NOT NULL,
	nickname       TEXT NOT NULL,
	banned_by_nick TEXT NOT NULL,
	message        TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	time       TEXT NOT NULL,
	source_uid INTEGER NOT NULL,
	nick       TEXT NOT NULL,
	msg        TEXT NOT NULL
);
`

// Store implements store.Store for SQLite.
type Store struct {
	db *sql.DB
}

// New opens (and, if necessary, creates) the SQLite database at
// dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBan upserts a ban record keyed by ip.
func (s *Store) SaveBan(rec core.BanRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO bans (ip, uid, nickname, banned_by_nick, message)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ip) DO UPDATE SET uid=excluded.uid, nickname=excluded.nickname,
			banned_by_nick=excluded.banned_by_nick, message=excluded.message
	`, rec.IP, rec.UID, rec.Nickname, rec.BannedByNick, rec.Message)
	if err != nil {
		return fmt.Errorf("save ban: %w", err)
	}
	return nil
}

// DeleteBan removes the ban record for ip, if any.
func (s *Store) DeleteBan(ip string) error {
	if _, err := s.db.Exec(`DELETE FROM bans WHERE ip = ?`, ip); err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}

// LoadBans returns every persisted ban record.
func (s *Store) LoadBans() ([]core.BanRecord, error) {
	rows, err := s.db.Query(`SELECT ip, uid, nickname, banned_by_nick, message FROM bans`)
	if err != nil {
		return nil, fmt.Errorf("load bans: %w", err)
	}
	defer rows.Close()

	var out []core.BanRecord
	for rows.Next() {
		var rec core.BanRecord
		if err := rows.Scan(&rec.IP, &rec.UID, &rec.Nickname, &rec.BannedByNick, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AppendChat inserts one chat log entry.
func (s *Store) AppendChat(entry core.ChatEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO chat_log (time, source_uid, nick, msg) VALUES (?, ?, ?, ?)
	`, entry.Time, entry.SourceUID, entry.Nick, entry.Msg)
	if err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

var _ interface {
	SaveBan(core.BanRecord) error
	DeleteBan(string) error
	LoadBans() ([]core.BanRecord, error)
	AppendChat(core.ChatEntry) error
	Close() error
} = (*Store)(nil)
