package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/service/cache"
)

const signalBookKey = "vprop:signal_book"

// CacheSignalBook keeps live candidates in a single cache entry. Only the
// scanner writes; the process-local mutex is enough because one sidecar
// owns its book.
type CacheSignalBook struct {
	c  cache.BytesCache
	mu sync.Mutex
}

func NewCacheSignalBook(c cache.BytesCache) *CacheSignalBook {
	return &CacheSignalBook{c: c}
}

func (b *CacheSignalBook) Put(ctx context.Context, cand *models.AlphaCandidate, ttl time.Duration) error {
	if cand == nil || cand.ID == "" {
		return fmt.Errorf("signal book: candidate without id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	book, err := b.load()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	// One live candidate per (symbol, timeframe, alpha); a fresh scan
	// replaces the previous hit.
	for id, c := range book {
		if c.Expired(now) || (c.Symbol == cand.Symbol && c.Timeframe == cand.Timeframe && c.Alpha == cand.Alpha) {
			delete(book, id)
		}
	}
	if cand.ExpiresAt.IsZero() {
		cand.ExpiresAt = now.Add(ttl)
	}
	book[cand.ID] = *cand
	return b.save(book, ttl)
}

func (b *CacheSignalBook) List(ctx context.Context) ([]models.AlphaCandidate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	book, err := b.load()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]models.AlphaCandidate, 0, len(book))
	for _, c := range book {
		if c.Expired(now) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *CacheSignalBook) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	book, err := b.load()
	if err != nil {
		return err
	}
	if _, ok := book[id]; !ok {
		return nil
	}
	delete(book, id)
	return b.save(book, 0)
}

func (b *CacheSignalBook) load() (map[string]models.AlphaCandidate, error) {
	raw, ok, err := b.c.GetBytes(signalBookKey)
	if err != nil {
		return nil, fmt.Errorf("signal book load: %w", err)
	}
	book := make(map[string]models.AlphaCandidate)
	if !ok || len(raw) == 0 {
		return book, nil
	}
	if err := json.Unmarshal(raw, &book); err != nil {
		// A corrupt book is dropped rather than wedging the scanner.
		return make(map[string]models.AlphaCandidate), nil
	}
	return book, nil
}

func (b *CacheSignalBook) save(book map[string]models.AlphaCandidate, ttl time.Duration) error {
	raw, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("signal book marshal: %w", err)
	}
	// Book key outlives its newest candidate so expiry filtering stays
	// read-side.
	keyTTL := 24 * time.Hour
	if ttl > keyTTL {
		keyTTL = ttl
	}
	if err := b.c.SetBytes(signalBookKey, raw, keyTTL); err != nil {
		return fmt.Errorf("signal book save: %w", err)
	}
	return nil
}
