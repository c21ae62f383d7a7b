// Package cache holds the byte-oriented stores backing the signal
// book, feature snapshots and the governor mirror. Values cross this
// boundary already serialized, which keeps the Redis and in-process
// variants interchangeable.
package cache

import "time"

// BytesCache stores opaque byte values under string keys. A zero ttl
// means the entry never expires. GetBytes reports a miss with ok=false
// and reserves err for transport failures.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
