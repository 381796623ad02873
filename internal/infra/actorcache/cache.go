// Package actorcache keeps a small in-process cache of actor identities
// in front of the actor repository. Identities are immutable once
// registered, so entries only expire to bound memory, not to refresh.
package actorcache

import (
	"sync"
	"time"

	"tabula/internal/domain"
	"tabula/internal/usecase"
)

const defaultTTL = 10 * time.Minute

type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	actor     domain.ActorIdentity
	expiresAt time.Time
}

// New returns a cache whose entries expire after ttl. A non-positive
// ttl falls back to the default.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *Cache) Get(id string) (domain.ActorIdentity, bool) {
	if c == nil {
		return domain.ActorIdentity{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return domain.ActorIdentity{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, id)
		return domain.ActorIdentity{}, false
	}
	return entry.actor, true
}

func (c *Cache) Put(id string, actor domain.ActorIdentity) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cacheEntry{
		actor:     actor,
		expiresAt: c.now().Add(c.ttl),
	}
}

var _ usecase.IdentityCache = (*Cache)(nil)
