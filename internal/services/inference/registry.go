package inference

import (
	"sync"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

type registryEntry struct {
	ens      *Ensemble
	fittedAt time.Time
	barCount int
}

// Registry holds the fitted ensemble per (symbol, timeframe). The scanner
// refits entries on its walk-forward schedule; readers always get the
// latest fit.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

func regKey(symbol string, tf models.Timeframe) string {
	return symbol + "|" + string(tf)
}

// Get returns the fitted ensemble and its fit time.
func (r *Registry) Get(symbol string, tf models.Timeframe) (*Ensemble, time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[regKey(symbol, tf)]
	if !ok {
		return nil, time.Time{}, false
	}
	return e.ens, e.fittedAt, true
}

// Put installs a freshly fitted ensemble.
func (r *Registry) Put(symbol string, tf models.Timeframe, ens *Ensemble, barCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[regKey(symbol, tf)] = registryEntry{
		ens:      ens,
		fittedAt: time.Now().UTC(),
		barCount: barCount,
	}
}

// NeedsRefit reports whether the entry is missing or older than the
// refit interval.
func (r *Registry) NeedsRefit(symbol string, tf models.Timeframe, refitEvery time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[regKey(symbol, tf)]
	if !ok {
		return true
	}
	return time.Since(e.fittedAt) >= refitEvery
}

// Size returns the number of fitted entries.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
