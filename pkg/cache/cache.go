// Package cache provides the snapshot cache behind the reporting read
// path. LayeredCache keeps hot snapshots in process memory on top of
// the shared Redis instance, so repeated polls inside a TTL skip the
// Redis round trip. The Redis layer doubles as a lock provider for
// loops that must not run on two replicas at once.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss reports that a key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the contract shared by every cache layer. Values are
// stored JSON-encoded so a hit decodes identically on any layer.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	// TryLock acquires key for ttl and returns a release token. ok is
	// false when another holder owns the key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases key only if token still matches the holder.
	Unlock(ctx context.Context, key, token string) error
}
