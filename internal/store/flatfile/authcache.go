// Package flatfile implements the line-oriented persisted formats §6
// requires for interop with the original server: the auth cache file
// and motd.txt.
package flatfile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// AuthCacheEntry is one resolved token record.
type AuthCacheEntry struct {
	AuthLevel uint32
	Token     string
	Username  string
}

// AuthCache is an in-memory, file-backed map of token to auth record,
// loaded once at startup and rewritten wholesale on every Put. Lines begin
// "<auth_level> <token> <username>"; a leading ";" marks a comment.
type AuthCache struct {
	mu      sync.Mutex
	path    string
	byToken map[string]AuthCacheEntry
}

// LoadAuthCache reads path into memory. A missing file is not an
// error — the cache starts empty.
func LoadAuthCache(path string) (*AuthCache, error) {
	c := &AuthCache{path: path, byToken: make(map[string]AuthCacheEntry)}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("flatfile: open auth cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		level, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		entry := AuthCacheEntry{
			AuthLevel: uint32(level),
			Token:     fields[1],
			Username:  strings.Join(fields[2:], " "),
		}
		c.byToken[entry.Token] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("flatfile: read auth cache: %w", err)
	}
	return c, nil
}

// Lookup returns the cached entry for token, if any.
func (c *AuthCache) Lookup(token string) (AuthCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byToken[token]
	return entry, ok
}

// Entries returns a snapshot of every cached record, for callers that
// need to scan rather than look up by exact token (e.g. matching a
// bcrypt-hashed token field).
func (c *AuthCache) Entries() []AuthCacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuthCacheEntry, 0, len(c.byToken))
	for _, e := range c.byToken {
		out = append(out, e)
	}
	return out
}

// Put inserts or replaces the cache entry for token and rewrites the
// backing file. AUTH_RANKED and AUTH_BANNED bits are stripped before
// the write (§6 "Persisted state").
func (c *AuthCache) Put(entry AuthCacheEntry) error {
	const authRanked, authBanned = 0x04, 0x10
	entry.AuthLevel &^= authRanked | authBanned

	c.mu.Lock()
	c.byToken[entry.Token] = entry
	snapshot := make([]AuthCacheEntry, 0, len(c.byToken))
	for _, e := range c.byToken {
		snapshot = append(snapshot, e)
	}
	path := c.path
	c.mu.Unlock()

	return writeAuthCacheFile(path, snapshot)
}

func writeAuthCacheFile(path string, entries []AuthCacheEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flatfile: write auth cache: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%d %s %s\n", e.AuthLevel, e.Token, e.Username); err != nil {
			return fmt.Errorf("flatfile: write auth cache: %w", err)
		}
	}
	return w.Flush()
}
