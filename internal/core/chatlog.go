package core

import (
	"sync"
	"time"
)

// MaxChatHistory is the ring buffer's capacity (§3: "at most 500
// entries").
const MaxChatHistory = 500

// ChatEntry is one line of recorded chat history.
type ChatEntry struct {
	Time      string
	SourceUID uint32
	Nick      string
	Msg       string
}

// ChatPersister optionally durably records chat entries beyond process
// lifetime. internal/store implements it.
type ChatPersister interface {
	AppendChat(ChatEntry) error
}

// chatLog is a fixed-capacity deque with eviction at the head — no
// unbounded growth (§9).
type chatLog struct {
	mu      sync.Mutex
	entries []ChatEntry
	persist ChatPersister
}

func newChatLog(persist ChatPersister) *chatLog {
	return &chatLog{persist: persist}
}

func (c *chatLog) add(sourceUID uint32, nick, msg string) {
	entry := ChatEntry{
		Time:      time.Now().Format(time.RFC3339),
		SourceUID: sourceUID,
		Nick:      nick,
		Msg:       msg,
	}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	if len(c.entries) > MaxChatHistory {
		c.entries = c.entries[len(c.entries)-MaxChatHistory:]
	}
	c.mu.Unlock()

	if c.persist != nil {
		_ = c.persist.AppendChat(entry)
	}
}

func (c *chatLog) snapshot() []ChatEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
