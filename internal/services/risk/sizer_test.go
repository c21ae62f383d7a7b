package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

func testCandidate() *models.AlphaCandidate {
	return &models.AlphaCandidate{
		ID:          "cand-1",
		Symbol:      "EURUSD",
		Timeframe:   models.TFM5,
		Direction:   models.DirectionLong,
		Alpha:       "trend_follow",
		EntryPrice:  100,
		StopLoss:    98,
		TakeProfit:  106,
		Probability: 0.62,
		QStar:       80,
		ES95:        0.05,
		VolScale:    1.0,
		GeneratedAt: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func newTestSizer(cfg SizerConfig) (*ESSizer, *EquityGovernor, *time.Time) {
	g, now := newTestGovernor()
	return NewESSizer(cfg, g), g, now
}

func TestSizeHappyPath(t *testing.T) {
	s, g, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 500})
	c := testCandidate()

	sig, err := s.Size(context.Background(), c, 100_000)

	require.NoError(t, err)
	require.NotNil(t, sig)
	// budget 1000 over ES95 0.05 x entry 100.
	assert.Equal(t, 200.0, sig.PositionSize)
	assert.Equal(t, c.ID, sig.ID)
	assert.Equal(t, c.Symbol, sig.Symbol)
	assert.Equal(t, c.Direction, sig.Direction)
	assert.Equal(t, c.EntryPrice, sig.EntryPrice)
	assert.Equal(t, c.StopLoss, sig.StopLoss)
	assert.Equal(t, c.TakeProfit, sig.TakeProfit)
	assert.Equal(t, c.QStar, sig.QStar)
	assert.Equal(t, c.Probability, sig.Probability)

	// The served signal reserved its notional against the cap.
	assert.Equal(t, 20_000.0, g.ExposureBySymbol()["EURUSD"])
}

func TestSizeMaxPositionCap(t *testing.T) {
	s, _, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 50})

	sig, err := s.Size(context.Background(), testCandidate(), 100_000)

	require.NoError(t, err)
	require.NotNil(t, sig)
	assert.Equal(t, 50.0, sig.PositionSize)
}

func TestSizeLotStepFloor(t *testing.T) {
	s, _, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 1000})
	c := testCandidate()
	c.ES95 = 0.08
	c.EntryPrice = 97

	sig, err := s.Size(context.Background(), c, 100_000)

	require.NoError(t, err)
	require.NotNil(t, sig)
	// raw 128.8659... floors to the broker lot step.
	assert.InDelta(t, 128.86, sig.PositionSize, 1e-9)
}

func TestSizeVolScaleClamped(t *testing.T) {
	cases := []struct {
		name     string
		volScale float64
		want     float64
	}{
		{"hot market clamps down to 1.2", 3.0, 240},
		{"cold market clamps up to 0.6", 0.1, 120},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 500})
			c := testCandidate()
			c.VolScale = tc.volScale

			sig, err := s.Size(context.Background(), c, 100_000)

			require.NoError(t, err)
			require.NotNil(t, sig)
			assert.Equal(t, tc.want, sig.PositionSize)
		})
	}
}

func TestSizeSoftLimitHalves(t *testing.T) {
	s, g, now := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 500})
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("prior", -3000, *now)))

	sig, err := s.Size(context.Background(), testCandidate(), 97_000)

	require.NoError(t, err)
	require.NotNil(t, sig)
	// budget 97000 x 0.01 x 0.5 = 485, size 485 / 5 = 97.
	assert.Equal(t, 97.0, sig.PositionSize)
}

func TestSizeRefusedWhenSuspended(t *testing.T) {
	s, g, now := newTestSizer(SizerConfig{RiskPerTrade: 0.01})
	require.NoError(t, g.ApplyExecution(context.Background(), execReport("prior", -6000, *now)))

	sig, err := s.Size(context.Background(), testCandidate(), 94_000)

	assert.ErrorIs(t, err, models.ErrGovernorLocked)
	assert.Nil(t, sig)
}

func TestSizeBelowMinimumDropped(t *testing.T) {
	s, g, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.001, MinPosition: 1})

	sig, err := s.Size(context.Background(), testCandidate(), 1000)

	require.NoError(t, err)
	assert.Nil(t, sig)
	assert.Empty(t, g.ExposureBySymbol())
}

func TestSizeExposureCapRejects(t *testing.T) {
	s, _, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 500})

	first, err := s.Size(context.Background(), testCandidate(), 100_000)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Identical second candidate would push open notional to 40k
	// against a 30k cap.
	second := testCandidate()
	second.ID = "cand-2"
	sig, err := s.Size(context.Background(), second, 100_000)
	require.NoError(t, err)
	assert.Nil(t, sig)
}

func TestSizeDegenerateCandidate(t *testing.T) {
	s, _, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01})

	flat := testCandidate()
	flat.ES95 = 0
	_, err := s.Size(context.Background(), flat, 100_000)
	assert.ErrorContains(t, err, "degenerate")

	_, err = s.Size(context.Background(), testCandidate(), -5)
	assert.ErrorContains(t, err, "equity must be positive")
}

func TestSizeCanceledContext(t *testing.T) {
	s, _, _ := newTestSizer(SizerConfig{RiskPerTrade: 0.01})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Size(ctx, testCandidate(), 100_000)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSizeHoldOutlivesCandidateExpiry(t *testing.T) {
	s, g, now := newTestSizer(SizerConfig{RiskPerTrade: 0.01, MaxPosition: 500, ExposureTTL: 5 * time.Minute})
	c := testCandidate()

	sig, err := s.Size(context.Background(), c, 100_000)
	require.NoError(t, err)
	require.NotNil(t, sig)
	require.NotEmpty(t, g.ExposureBySymbol())

	// No expiry on the candidate means the configured fallback TTL.
	*now = now.Add(6 * time.Minute)
	assert.Empty(t, g.ExposureBySymbol())
}
