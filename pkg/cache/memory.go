package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultMemoryTTL bounds entries stored without one. Snapshot callers
// always pass short TTLs; this only guards against a zero slipping in.
const defaultMemoryTTL = time.Hour

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (it *memoryItem) expired(now time.Time) bool {
	return now.After(it.expireAt)
}

// MemoryCache is the in-process layer. Values are kept JSON-encoded so
// a hit decodes exactly like a Redis hit, and the least recently read
// entry is evicted when the cache is full.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	access  map[string]time.Time
	locks   map[string]*memoryItem
	maxSize int
	janitor *time.Ticker
	done    chan struct{}
}

// NewMemoryCache creates an in-process cache and starts its expiry
// sweeper. Close stops the sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		access:  make(map[string]time.Time),
		locks:   make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		janitor: time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}
	go mc.sweep()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	mc.setRaw(key, data, ttl)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	data, ok := mc.getRaw(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
		delete(mc.access, key)
	}
	return nil
}

// TryLock takes an in-process lock. Locks live outside the eviction
// budget: evicting a held lock would hand it to a second worker.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	if it, ok := mc.locks[key]; ok && !it.expired(now) {
		return "", false, nil
	}
	token := uuid.NewString()
	mc.locks[key] = &memoryItem{data: []byte(token), expireAt: now.Add(ttl)}
	return token, true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, token string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if it, ok := mc.locks[key]; ok && string(it.data) == token {
		delete(mc.locks, key)
	}
	return nil
}

func (mc *MemoryCache) setRaw(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictOldest()
	}
	now := time.Now()
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(ttl)}
	mc.access[key] = now
}

func (mc *MemoryCache) getRaw(key string) ([]byte, bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	it, ok := mc.data[key]
	if !ok {
		return nil, false
	}
	if it.expired(time.Now()) {
		delete(mc.data, key)
		delete(mc.access, key)
		return nil, false
	}
	mc.access[key] = time.Now()
	return it.data, true
}

// evictOldest drops the least recently read entry. Caller holds mu.
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestAt time.Time
	for key, at := range mc.access {
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey = key
			oldestAt = at
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
		delete(mc.access, oldestKey)
	}
}

func (mc *MemoryCache) sweep() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.janitor.C:
			now := time.Now()
			mc.mu.Lock()
			for key, it := range mc.data {
				if it.expired(now) {
					delete(mc.data, key)
					delete(mc.access, key)
				}
			}
			for key, it := range mc.locks {
				if it.expired(now) {
					delete(mc.locks, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the expiry sweeper.
func (mc *MemoryCache) Close() error {
	mc.janitor.Stop()
	select {
	case <-mc.done:
	default:
		close(mc.done)
	}
	return nil
}
