package cache

import (
	"sync"
	"time"
)

// Expired entries are dropped lazily on read; a sweep every sweepEvery
// writes keeps keys that are never read again from pinning memory.
const sweepEvery = 256

// TTLCache is a process-local BytesCache. It stands in for Redis in
// tests and backs single-node deployments where the governor mirror
// does not need to survive a restart.
type TTLCache struct {
	mu     sync.RWMutex
	items  map[string]ttlItem
	writes int
}

type ttlItem struct {
	val      []byte
	deadline int64 // unix nanos, 0 means no expiry
}

func NewTTLCache() *TTLCache {
	return &TTLCache{items: make(map[string]ttlItem)}
}

func (c *TTLCache) GetBytes(key string) ([]byte, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if it.deadline != 0 && time.Now().UnixNano() > it.deadline {
		c.mu.Lock()
		// only delete the entry we saw; a concurrent Set may have
		// replaced it with a fresher one
		if cur, live := c.items[key]; live && cur.deadline == it.deadline {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return it.val, true, nil
}

func (c *TTLCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	var deadline int64
	if ttl > 0 {
		deadline = time.Now().Add(ttl).UnixNano()
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	c.mu.Lock()
	c.items[key] = ttlItem{val: cp, deadline: deadline}
	c.writes++
	if c.writes%sweepEvery == 0 {
		c.sweepLocked(time.Now().UnixNano())
	}
	c.mu.Unlock()
	return nil
}

func (c *TTLCache) sweepLocked(now int64) {
	for k, it := range c.items {
		if it.deadline != 0 && now > it.deadline {
			delete(c.items, k)
		}
	}
}
