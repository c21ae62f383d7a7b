package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domrepo "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/repository"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// CandleProvider fetches historical candles from the market-data REST
// API.
type CandleProvider interface {
	Candles(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]*models.Bar, error)
}

// Locker serializes a loop across replicas sharing one Redis.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, key, token string) error
}

// backfillLockKey guards the sweep so replicas sharing a provider quota
// do not fetch the same history twice.
const backfillLockKey = "backfill:sweep"

// BackfillConfig drives the history catch-up loop.
type BackfillConfig struct {
	Symbols    []string
	Timeframes []models.Timeframe
	// Bars is the initial window depth requested for an empty store.
	Bars           int
	Every          time.Duration
	MaxGapFillBars int
}

// Backfiller keeps the bar store caught up with provider history. On
// start and on schedule it asks each (symbol, timeframe) pair for bars
// after the stored high-water mark, fills interior gaps with synthetic
// bars and batches everything to the store.
type Backfiller struct {
	cfg      BackfillConfig
	provider CandleProvider
	store    domrepo.BarStore
	filler   *GapFiller
	locker   Locker
	metrics  domrepo.Metrics
	logger   *logger.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

func NewBackfiller(cfg BackfillConfig, provider CandleProvider, store domrepo.BarStore, locker Locker, metrics domrepo.Metrics, l *logger.Logger) *Backfiller {
	if cfg.Bars <= 0 {
		cfg.Bars = 1000
	}
	if cfg.Every <= 0 {
		cfg.Every = 15 * time.Minute
	}
	if cfg.MaxGapFillBars <= 0 {
		cfg.MaxGapFillBars = 50
	}
	return &Backfiller{
		cfg:      cfg,
		provider: provider,
		store:    store,
		filler:   NewGapFiller(cfg.MaxGapFillBars),
		locker:   locker,
		metrics:  metrics,
		logger:   l,
		stopCh:   make(chan struct{}),
	}
}

// Start runs an immediate catch-up pass and then repeats on the
// configured interval.
func (b *Backfiller) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		b.RunOnce(ctx)
		tick := time.NewTicker(b.cfg.Every)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-tick.C:
				b.RunOnce(ctx)
			}
		}
	}()
}

func (b *Backfiller) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.started = false
	close(b.stopCh)
}

// RunOnce sweeps every configured pair. Pair failures are logged and
// the sweep moves on; a provider outage should not wedge other symbols.
// When replicas share one Redis, only the lock holder sweeps; a lock
// error never blocks catch-up since the rest of the path has no Redis
// dependency.
func (b *Backfiller) RunOnce(ctx context.Context) {
	if b.locker != nil {
		token, ok, err := b.locker.TryLock(ctx, backfillLockKey, b.cfg.Every)
		switch {
		case err != nil:
			b.logger.Warn("backfill lock", logger.Error(err))
		case !ok:
			b.logger.Debug("backfill held by another replica, skipping sweep")
			return
		default:
			defer func() {
				if err := b.locker.Unlock(ctx, backfillLockKey, token); err != nil {
					b.logger.Debug("backfill unlock", logger.Error(err))
				}
			}()
		}
	}

	for _, sym := range b.cfg.Symbols {
		for _, tf := range b.cfg.Timeframes {
			if ctx.Err() != nil {
				return
			}
			if err := b.backfillPair(ctx, sym, tf); err != nil {
				b.metrics.RecordError("backfill")
				b.logger.Warn("backfill failed",
					logger.String("symbol", sym),
					logger.String("tf", tf.String()),
					logger.Error(err),
				)
			}
		}
	}
}

func (b *Backfiller) backfillPair(ctx context.Context, symbol string, tf models.Timeframe) error {
	now := time.Now().UTC()
	last, err := b.store.LastTimestamp(ctx, symbol, tf)
	if err != nil {
		return fmt.Errorf("cursor: %w", err)
	}

	var from time.Time
	if last.IsZero() {
		from = now.Add(-time.Duration(b.cfg.Bars) * tf.Duration())
	} else {
		from = last.Add(tf.Duration())
	}
	if !from.Before(now) {
		return nil
	}

	fetched, err := b.provider.Candles(ctx, symbol, tf, from, now)
	if err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if len(fetched) == 0 {
		return nil
	}

	// Anchor gap detection on the last stored bar so the seam between
	// stored history and this fetch is filled too.
	var prev *models.Bar
	if !last.IsZero() {
		if tail, err := b.store.Latest(ctx, symbol, tf, 1); err == nil && len(tail) == 1 {
			prev = &tail[0]
		}
	}
	filled := b.filler.Fill(tf, prev, fetched)

	if err := b.store.InsertBars(ctx, filled); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	synthetic := 0
	for _, bar := range filled {
		if bar.IsSynthetic {
			synthetic++
		}
		b.metrics.RecordBarStored(bar.Symbol, tf.String(), bar.IsSynthetic)
	}
	b.logger.Info("backfill stored",
		logger.String("symbol", symbol),
		logger.String("tf", tf.String()),
		logger.Int("fetched", len(fetched)),
		logger.Int("synthetic", synthetic),
	)
	return nil
}

// GapFiller inserts flat synthetic bars where a bar sequence skips
// slots. A later real bar for the same slot replaces the synthetic one
// at the store level.
type GapFiller struct {
	maxFill int
}

func NewGapFiller(maxFill int) *GapFiller {
	if maxFill <= 0 {
		maxFill = 50
	}
	return &GapFiller{maxFill: maxFill}
}

// Fill returns bars with interior gaps filled, in timestamp order. prev
// anchors the seam before the first bar and may be nil. The synthetic
// budget is per call; once spent, remaining gaps pass through unfilled.
func (f *GapFiller) Fill(tf models.Timeframe, prev *models.Bar, bars []*models.Bar) []*models.Bar {
	if len(bars) == 0 {
		return bars
	}
	step := tf.Duration()
	budget := f.maxFill
	out := make([]*models.Bar, 0, len(bars))

	anchor := prev
	for _, cur := range bars {
		if anchor != nil && budget > 0 {
			for slot := anchor.Timestamp.Add(step); slot.Before(cur.Timestamp) && budget > 0; slot = slot.Add(step) {
				if tf == models.TFD1 && isWeekend(slot) {
					continue
				}
				out = append(out, syntheticBar(anchor, slot))
				budget--
			}
		}
		out = append(out, cur)
		anchor = cur
	}
	return out
}

func syntheticBar(prev *models.Bar, slot time.Time) *models.Bar {
	return &models.Bar{
		Symbol:      prev.Symbol,
		Timeframe:   prev.Timeframe,
		Timestamp:   slot,
		Open:        prev.Close,
		High:        prev.Close,
		Low:         prev.Close,
		Close:       prev.Close,
		Volume:      0,
		IsSynthetic: true,
	}
}

func isWeekend(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
