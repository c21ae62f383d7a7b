package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

type fakeBook struct {
	cands     []models.AlphaCandidate
	listErr   error
	listCalls int
	put       []models.AlphaCandidate
}

func (b *fakeBook) Put(ctx context.Context, c *models.AlphaCandidate, ttl time.Duration) error {
	b.put = append(b.put, *c)
	return nil
}

func (b *fakeBook) List(ctx context.Context) ([]models.AlphaCandidate, error) {
	b.listCalls++
	return b.cands, b.listErr
}

func (b *fakeBook) Remove(ctx context.Context, id string) error { return nil }

type fakeSizer struct {
	calls int
	fn    func(c *models.AlphaCandidate, equity float64) (*models.SignalData, error)
}

func (s *fakeSizer) Size(ctx context.Context, c *models.AlphaCandidate, equity float64) (*models.SignalData, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(c, equity)
	}
	return &models.SignalData{
		ID:           c.ID,
		Symbol:       c.Symbol,
		Timeframe:    c.Timeframe,
		Direction:    c.Direction,
		EntryPrice:   c.EntryPrice,
		QStar:        c.QStar,
		PositionSize: 1,
	}, nil
}

func bookCandidate(id, symbol string, qstar float64) models.AlphaCandidate {
	return models.AlphaCandidate{
		ID:         id,
		Symbol:     symbol,
		Timeframe:  models.TFM5,
		Direction:  models.DirectionLong,
		Alpha:      "trend_pullback",
		EntryPrice: 1.10,
		StopLoss:   1.09,
		TakeProfit: 1.12,
		QStar:      qstar,
		ES95:       0.004,
		VolScale:   1,
		Tradable:   true,
	}
}

func newSignalsUseCase(t *testing.T, book *fakeBook, sizer *fakeSizer, gov *stubGovernor) *SignalsUseCase {
	t.Helper()
	return NewSignalsUseCase(book, sizer, gov, nopMetrics{}, testLogger(t))
}

func TestGetSignalsRequiresPositiveEquity(t *testing.T) {
	uc := newSignalsUseCase(t, &fakeBook{}, &fakeSizer{}, newStubGovernor())

	_, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 0})

	assert.Error(t, err)
}

func TestGetSignalsWithheldWhenNotTradable(t *testing.T) {
	book := &fakeBook{cands: []models.AlphaCandidate{bookCandidate("c1", "EURUSD", 2)}}
	gov := newStubGovernor()
	gov.snap.State = models.GovernorSuspended
	uc := newSignalsUseCase(t, book, &fakeSizer{}, gov)

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000})

	require.NoError(t, err)
	assert.Empty(t, res.Signals)
	assert.Zero(t, res.Count)
	assert.Equal(t, models.GovernorSuspended, res.GovernorState)
	assert.Zero(t, book.listCalls)
}

func TestGetSignalsSortsByQStarAndLimits(t *testing.T) {
	book := &fakeBook{cands: []models.AlphaCandidate{
		bookCandidate("low", "EURUSD", 1.2),
		bookCandidate("high", "GBPUSD", 3.4),
		bookCandidate("mid", "USDJPY", 2.2),
	}}
	uc := newSignalsUseCase(t, book, &fakeSizer{}, newStubGovernor())

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000, Limit: 2})

	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "high", res.Signals[0].ID)
	assert.Equal(t, "mid", res.Signals[1].ID)
}

func TestGetSignalsFiltersSymbolAndTradable(t *testing.T) {
	stale := bookCandidate("stale", "EURUSD", 5)
	stale.Tradable = false
	book := &fakeBook{cands: []models.AlphaCandidate{
		bookCandidate("eur", "EURUSD", 2),
		bookCandidate("gbp", "GBPUSD", 3),
		stale,
	}}
	uc := newSignalsUseCase(t, book, &fakeSizer{}, newStubGovernor())

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000, Symbol: "EURUSD"})

	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "eur", res.Signals[0].ID)
}

func TestGetSignalsSkipsCandidatesSizedToNothing(t *testing.T) {
	book := &fakeBook{cands: []models.AlphaCandidate{
		bookCandidate("big", "EURUSD", 3),
		bookCandidate("dust", "GBPUSD", 2),
	}}
	sizer := &fakeSizer{fn: func(c *models.AlphaCandidate, equity float64) (*models.SignalData, error) {
		if c.ID == "dust" {
			return nil, nil
		}
		return &models.SignalData{ID: c.ID, Symbol: c.Symbol, PositionSize: 1}, nil
	}}
	uc := newSignalsUseCase(t, book, sizer, newStubGovernor())

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000})

	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "big", res.Signals[0].ID)
}

func TestGetSignalsSizerErrorSkipsCandidateOnly(t *testing.T) {
	book := &fakeBook{cands: []models.AlphaCandidate{
		bookCandidate("broken", "EURUSD", 3),
		bookCandidate("ok", "GBPUSD", 2),
	}}
	sizer := &fakeSizer{fn: func(c *models.AlphaCandidate, equity float64) (*models.SignalData, error) {
		if c.ID == "broken" {
			return nil, errors.New("es95 degenerate")
		}
		return &models.SignalData{ID: c.ID, Symbol: c.Symbol, PositionSize: 1}, nil
	}}
	uc := newSignalsUseCase(t, book, sizer, newStubGovernor())

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000})

	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "ok", res.Signals[0].ID)
}

func TestGetSignalsStopsWhenGovernorFlipsMidRequest(t *testing.T) {
	book := &fakeBook{cands: []models.AlphaCandidate{
		bookCandidate("first", "EURUSD", 3),
		bookCandidate("second", "GBPUSD", 2),
		bookCandidate("third", "USDJPY", 1),
	}}
	sizer := &fakeSizer{}
	sizer.fn = func(c *models.AlphaCandidate, equity float64) (*models.SignalData, error) {
		if sizer.calls > 1 {
			return nil, models.ErrGovernorLocked
		}
		return &models.SignalData{ID: c.ID, Symbol: c.Symbol, PositionSize: 1}, nil
	}
	uc := newSignalsUseCase(t, book, sizer, newStubGovernor())

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000})

	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "first", res.Signals[0].ID)
	// third candidate never reaches the sizer once the lock surfaces
	assert.Equal(t, 2, sizer.calls)
}

func TestGetSignalsBookErrorPropagates(t *testing.T) {
	book := &fakeBook{listErr: errors.New("redis down")}
	uc := newSignalsUseCase(t, book, &fakeSizer{}, newStubGovernor())

	_, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000})

	assert.Error(t, err)
}

func TestGetSignalsDefaultLimit(t *testing.T) {
	book := &fakeBook{}
	for i := 0; i < 12; i++ {
		book.cands = append(book.cands, bookCandidate(string(rune('a'+i)), "EURUSD", float64(i)))
	}
	uc := newSignalsUseCase(t, book, &fakeSizer{}, newStubGovernor())

	res, err := uc.GetSignals(context.Background(), GetSignalsParams{Equity: 100_000})

	require.NoError(t, err)
	assert.Equal(t, 10, res.Count)
}
