package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type snapshot struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func newTestMemory(t *testing.T, opts ...MemoryOption) *MemoryCache {
	t.Helper()
	mc := NewMemoryCache(append(opts, WithMemoryCleanup(time.Minute))...)
	t.Cleanup(func() { _ = mc.Close() })
	return mc
}

func TestMemorySetGet(t *testing.T) {
	mc := newTestMemory(t)
	ctx := context.Background()

	in := snapshot{Name: "overview", Value: 42.5}
	if err := mc.Set(ctx, "k", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out snapshot
	if err := mc.Get(ctx, "k", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("unexpected value %+v", out)
	}
}

func TestMemoryMiss(t *testing.T) {
	mc := newTestMemory(t)

	var out snapshot
	if err := mc.Get(context.Background(), "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestMemoryExpiry(t *testing.T) {
	mc := newTestMemory(t)
	ctx := context.Background()

	if err := mc.Set(ctx, "k", snapshot{Name: "x"}, 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(25 * time.Millisecond)

	var out snapshot
	if err := mc.Get(ctx, "k", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expiry miss, got %v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	mc := newTestMemory(t)
	ctx := context.Background()

	_ = mc.Set(ctx, "a", snapshot{}, time.Minute)
	_ = mc.Set(ctx, "b", snapshot{}, time.Minute)
	if err := mc.Delete(ctx, "a", "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var out snapshot
	if err := mc.Get(ctx, "a", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryEvictsLeastRecentlyRead(t *testing.T) {
	mc := newTestMemory(t, WithMemoryMaxSize(2))
	ctx := context.Background()

	_ = mc.Set(ctx, "a", snapshot{Name: "a"}, time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", snapshot{Name: "b"}, time.Minute)
	time.Sleep(time.Millisecond)

	var out snapshot
	if err := mc.Get(ctx, "a", &out); err != nil {
		t.Fatalf("get a: %v", err)
	}
	time.Sleep(time.Millisecond)

	// Cache is full; b has the oldest read and must go.
	_ = mc.Set(ctx, "c", snapshot{Name: "c"}, time.Minute)

	if err := mc.Get(ctx, "b", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &out); err != nil {
		t.Fatalf("a should survive: %v", err)
	}
	if err := mc.Get(ctx, "c", &out); err != nil {
		t.Fatalf("c should exist: %v", err)
	}
}

func TestMemoryLockTokens(t *testing.T) {
	mc := newTestMemory(t)
	ctx := context.Background()

	token, ok, err := mc.TryLock(ctx, "job", time.Minute)
	if err != nil || !ok || token == "" {
		t.Fatalf("first lock: ok=%v token=%q err=%v", ok, token, err)
	}

	if _, ok, _ := mc.TryLock(ctx, "job", time.Minute); ok {
		t.Fatalf("second lock should fail while held")
	}

	// A stranger's token must not release the lock.
	if err := mc.Unlock(ctx, "job", "not-the-token"); err != nil {
		t.Fatalf("unlock foreign token: %v", err)
	}
	if _, ok, _ := mc.TryLock(ctx, "job", time.Minute); ok {
		t.Fatalf("lock should still be held")
	}

	if err := mc.Unlock(ctx, "job", token); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, ok, _ := mc.TryLock(ctx, "job", time.Minute); !ok {
		t.Fatalf("lock should be free after release")
	}
}

func TestMemoryLockExpires(t *testing.T) {
	mc := newTestMemory(t)
	ctx := context.Background()

	if _, ok, _ := mc.TryLock(ctx, "job", 10*time.Millisecond); !ok {
		t.Fatalf("first lock should succeed")
	}
	time.Sleep(25 * time.Millisecond)

	if _, ok, _ := mc.TryLock(ctx, "job", time.Minute); !ok {
		t.Fatalf("expired lock should be reacquirable")
	}
}

func TestLayeredServesFromMemory(t *testing.T) {
	// The Redis layer points nowhere; a memory hit must not touch it.
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "t")
	lc := &LayeredCache{mem: NewMemoryCache(WithMemoryCleanup(time.Minute)), redis: rc}
	t.Cleanup(func() { _ = lc.Close() })

	data := []byte(`{"name":"overview","value":1}`)
	lc.mem.setRaw("k", data, time.Minute)

	var out snapshot
	if err := lc.Get(context.Background(), "k", &out); err != nil {
		t.Fatalf("layered get: %v", err)
	}
	if out.Name != "overview" || out.Value != 1 {
		t.Fatalf("unexpected value %+v", out)
	}
}

func TestLayeredDeleteClearsMemory(t *testing.T) {
	rc := NewRedisCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "t")
	lc := &LayeredCache{mem: NewMemoryCache(WithMemoryCleanup(time.Minute)), redis: rc}
	t.Cleanup(func() { _ = lc.Close() })

	lc.mem.setRaw("k", []byte(`{}`), time.Minute)
	// Redis side errors with no server; the memory layer must clear
	// regardless.
	_ = lc.Delete(context.Background(), "k")

	if _, ok := lc.mem.getRaw("k"); ok {
		t.Fatalf("memory entry should be gone")
	}
}
