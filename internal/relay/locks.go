package relay

import (
	"sync"

	"whats-bot/internal/domain"
)

// conversationLocks serializes relay operations per conversation. Two
// overlapping webhooks for the same chat would otherwise both read the same
// history and the second write would drop the first pair of turns.
// Entries are reference counted so the table does not grow with every
// conversation ever seen.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the conversation's lock is held and returns the release
// function.
func (c *conversationLocks) lock(key domain.ConversationKey) func() {
	id := key.String()

	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*lockEntry)
	}
	entry := c.locks[id]
	if entry == nil {
		entry = &lockEntry{}
		c.locks[id] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
