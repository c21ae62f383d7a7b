package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

func m5Bar(ts time.Time, close float64) *models.Bar {
	return &models.Bar{
		Symbol:    "EURUSD",
		Timeframe: models.TFM5,
		Timestamp: ts,
		Open:      close - 0.01,
		High:      close + 0.02,
		Low:       close - 0.02,
		Close:     close,
		Volume:    10,
	}
}

func TestGapFillerPassThrough(t *testing.T) {
	f := NewGapFiller(50)
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bars := []*models.Bar{m5Bar(t0, 1.10), m5Bar(t0.Add(5*time.Minute), 1.11)}

	out := f.Fill(models.TFM5, nil, bars)

	require.Len(t, out, 2)
	for _, b := range out {
		assert.False(t, b.IsSynthetic)
	}
}

func TestGapFillerFillsInteriorGap(t *testing.T) {
	f := NewGapFiller(50)
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bars := []*models.Bar{m5Bar(t0, 1.10), m5Bar(t0.Add(15*time.Minute), 1.13)}

	out := f.Fill(models.TFM5, nil, bars)

	require.Len(t, out, 4)
	assert.Equal(t, t0.Add(5*time.Minute), out[1].Timestamp)
	assert.Equal(t, t0.Add(10*time.Minute), out[2].Timestamp)
	for _, syn := range out[1:3] {
		assert.True(t, syn.IsSynthetic)
		// synthetic bars are flat at the previous close
		assert.Equal(t, 1.10, syn.Open)
		assert.Equal(t, 1.10, syn.High)
		assert.Equal(t, 1.10, syn.Low)
		assert.Equal(t, 1.10, syn.Close)
		assert.Zero(t, syn.Volume)
	}
}

func TestGapFillerAnchorsSeamOnPrev(t *testing.T) {
	f := NewGapFiller(50)
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	prev := m5Bar(t0, 1.20)
	bars := []*models.Bar{m5Bar(t0.Add(15*time.Minute), 1.21)}

	out := f.Fill(models.TFM5, prev, bars)

	require.Len(t, out, 3)
	assert.True(t, out[0].IsSynthetic)
	assert.Equal(t, t0.Add(5*time.Minute), out[0].Timestamp)
	assert.Equal(t, 1.20, out[0].Close)
	assert.True(t, out[1].IsSynthetic)
	assert.False(t, out[2].IsSynthetic)
}

func TestGapFillerBudgetSpentStopsFilling(t *testing.T) {
	f := NewGapFiller(2)
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bars := []*models.Bar{m5Bar(t0, 1.10), m5Bar(t0.Add(30*time.Minute), 1.12)}

	out := f.Fill(models.TFM5, nil, bars)

	// five slots missing, only two filled
	require.Len(t, out, 4)
	assert.True(t, out[1].IsSynthetic)
	assert.True(t, out[2].IsSynthetic)
	assert.False(t, out[3].IsSynthetic)
}

func TestGapFillerSkipsWeekendDaily(t *testing.T) {
	f := NewGapFiller(50)
	friday := time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2025, 6, 9, 0, 0, 0, 0, time.UTC)
	fb := m5Bar(friday, 1.10)
	fb.Timeframe = models.TFD1
	mb := m5Bar(monday, 1.11)
	mb.Timeframe = models.TFD1

	out := f.Fill(models.TFD1, nil, []*models.Bar{fb, mb})

	require.Len(t, out, 2)
	assert.False(t, out[0].IsSynthetic)
	assert.False(t, out[1].IsSynthetic)
}

func TestGapFillerEmptyInput(t *testing.T) {
	f := NewGapFiller(50)

	assert.Empty(t, f.Fill(models.TFM5, nil, nil))
}

type fakeProvider struct {
	mu    sync.Mutex
	bars  []*models.Bar
	err   error
	calls int
}

func (p *fakeProvider) Candles(ctx context.Context, symbol string, tf models.Timeframe, from, to time.Time) ([]*models.Bar, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.bars, p.err
}

type fakeLocker struct {
	ok      bool
	err     error
	tries   int
	unlocks int
	lastKey string
	lastTTL time.Duration
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.tries++
	l.lastKey = key
	l.lastTTL = ttl
	if l.err != nil {
		return "", false, l.err
	}
	if !l.ok {
		return "", false, nil
	}
	return "tok-1", true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.unlocks++
	return nil
}

func backfillConfig() BackfillConfig {
	return BackfillConfig{
		Symbols:        []string{"EURUSD"},
		Timeframes:     []models.Timeframe{models.TFM5},
		Bars:           1000,
		Every:          time.Minute,
		MaxGapFillBars: 50,
	}
}

func TestRunOnceStoresFetchedBars(t *testing.T) {
	t0 := time.Now().UTC().Truncate(5 * time.Minute).Add(-time.Hour)
	provider := &fakeProvider{bars: []*models.Bar{
		m5Bar(t0, 1.10),
		m5Bar(t0.Add(5*time.Minute), 1.11),
		m5Bar(t0.Add(15*time.Minute), 1.12),
	}}
	store := &memBarStore{}
	locker := &fakeLocker{ok: true}
	b := NewBackfiller(backfillConfig(), provider, store, locker, nopMetrics{}, testLogger(t))

	b.RunOnce(context.Background())

	inserted := store.insertedBars()
	require.Len(t, inserted, 4)
	synthetic := 0
	for _, bar := range inserted {
		if bar.IsSynthetic {
			synthetic++
		}
	}
	assert.Equal(t, 1, synthetic)
	assert.Equal(t, backfillLockKey, locker.lastKey)
	assert.Equal(t, time.Minute, locker.lastTTL)
	assert.Equal(t, 1, locker.unlocks)
}

func TestRunOnceSeamFilledFromStoredTail(t *testing.T) {
	t0 := time.Now().UTC().Truncate(5 * time.Minute).Add(-time.Hour)
	stored := m5Bar(t0, 1.20)
	store := &memBarStore{last: t0, bars: []models.Bar{*stored}}
	provider := &fakeProvider{bars: []*models.Bar{m5Bar(t0.Add(15*time.Minute), 1.21)}}
	b := NewBackfiller(backfillConfig(), provider, store, nil, nopMetrics{}, testLogger(t))

	b.RunOnce(context.Background())

	inserted := store.insertedBars()
	require.Len(t, inserted, 3)
	assert.True(t, inserted[0].IsSynthetic)
	assert.Equal(t, t0.Add(5*time.Minute), inserted[0].Timestamp)
	assert.Equal(t, 1.20, inserted[0].Close)
}

func TestRunOnceSkipsWhenLockHeldElsewhere(t *testing.T) {
	provider := &fakeProvider{}
	store := &memBarStore{}
	locker := &fakeLocker{ok: false}
	b := NewBackfiller(backfillConfig(), provider, store, locker, nopMetrics{}, testLogger(t))

	b.RunOnce(context.Background())

	assert.Zero(t, provider.calls)
	assert.Zero(t, locker.unlocks)
}

func TestRunOnceLockErrorStillSweeps(t *testing.T) {
	provider := &fakeProvider{}
	store := &memBarStore{}
	locker := &fakeLocker{err: errors.New("redis down")}
	b := NewBackfiller(backfillConfig(), provider, store, locker, nopMetrics{}, testLogger(t))

	b.RunOnce(context.Background())

	assert.Equal(t, 1, provider.calls)
	assert.Zero(t, locker.unlocks)
}

func TestRunOnceProviderFailureDoesNotWedgeOthers(t *testing.T) {
	cfg := backfillConfig()
	cfg.Symbols = []string{"EURUSD", "GBPUSD"}
	provider := &fakeProvider{err: errors.New("rate limited")}
	b := NewBackfiller(cfg, provider, &memBarStore{}, nil, nopMetrics{}, testLogger(t))

	b.RunOnce(context.Background())

	assert.Equal(t, 2, provider.calls)
}

func TestNewBackfillerDefaults(t *testing.T) {
	b := NewBackfiller(BackfillConfig{}, &fakeProvider{}, &memBarStore{}, nil, nopMetrics{}, testLogger(t))

	assert.Equal(t, 1000, b.cfg.Bars)
	assert.Equal(t, 15*time.Minute, b.cfg.Every)
	assert.Equal(t, 50, b.cfg.MaxGapFillBars)
}
