package credentials

import (
	"context"
	"errors"
	"sync"
	"time"

	"whats-bot/internal/domain"
)

// Cache memoizes credentials per account id in front of a slower Source.
// A zero ttl keeps entries for the life of the process, which matches the
// deployment where tokens rotate only on redeploy; callers that rotate
// tokens at runtime set a ttl or call Invalidate. Lookup failures are never
// cached.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	cred      domain.Credential
	fetchedAt time.Time
}

// NewCache wraps source with a per-account cache.
func NewCache(source Source, ttl time.Duration) (*Cache, error) {
	if source == nil {
		return nil, errors.New("credentials: source must not be nil")
	}
	return &Cache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}, nil
}

func (c *Cache) Lookup(ctx context.Context, accountID string) (domain.Credential, error) {
	c.mu.RLock()
	entry, ok := c.entries[accountID]
	c.mu.RUnlock()
	if ok && c.fresh(entry) {
		return entry.cred, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[accountID]; ok && c.fresh(entry) {
		return entry.cred, nil
	}

	cred, err := c.source.Lookup(ctx, accountID)
	if err != nil {
		return domain.Credential{}, err
	}
	c.entries[accountID] = cacheEntry{cred: cred, fetchedAt: c.now()}
	return cred, nil
}

// Invalidate drops the cached credential for an account, forcing the next
// Lookup back to the source.
func (c *Cache) Invalidate(accountID string) {
	c.mu.Lock()
	delete(c.entries, accountID)
	c.mu.Unlock()
}

func (c *Cache) fresh(entry cacheEntry) bool {
	if c.ttl <= 0 {
		return true
	}
	return c.now().Sub(entry.fetchedAt) < c.ttl
}
