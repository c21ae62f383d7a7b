package risk

import (
	"math"
	"testing"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

// retBars compounds a log-return series into a close-to-close bar
// sequence so Estimate sees exactly those returns.
func retBars(rets []float64) []models.Bar {
	bars := make([]models.Bar, len(rets)+1)
	price := 100.0
	bars[0] = models.Bar{Symbol: "EURUSD", Timeframe: models.TFM5, Close: price}
	for i, r := range rets {
		price *= math.Exp(r)
		bars[i+1] = models.Bar{Symbol: "EURUSD", Timeframe: models.TFM5, Close: price}
	}
	return bars
}

// repeat builds n copies of v.
func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestExpectedShortfallEmpiricalTail(t *testing.T) {
	// 95 small gains and 5 losses of 5%: the 5% tail is exactly the
	// losses, so ES is their mean magnitude.
	rets := append(repeat(0.001, 95), repeat(-0.05, 5)...)

	es := ExpectedShortfall(rets)

	assert.InDelta(t, 0.05, es, 1e-12)
}

func TestExpectedShortfallNormalFallback(t *testing.T) {
	// Two losses in a hundred samples leave the tail too thin for the
	// empirical estimate, so the normal approximation takes over.
	rets := append(repeat(0.002, 98), repeat(-0.03, 2)...)

	es := ExpectedShortfall(rets)

	sigma, err := stats.StandardDeviationSample(rets)
	require.NoError(t, err)
	assert.Greater(t, es, 0.0)
	assert.InDelta(t, esNormalFactor*sigma, es, 1e-12)
}

func TestEstimateHorizonScaling(t *testing.T) {
	rets := append(repeat(0.001, 95), repeat(-0.04, 5)...)
	bars := retBars(rets)

	oneBar := NewES95Estimator(500, 1)
	fourBars := NewES95Estimator(500, 4)

	es1, err := oneBar.Estimate(bars)
	require.NoError(t, err)
	es4, err := fourBars.Estimate(bars)
	require.NoError(t, err)

	assert.InDelta(t, 0.04, es1, 1e-9)
	assert.InDelta(t, 2*es1, es4, 1e-9)
}

func TestEstimateLookbackTrimsOldReturns(t *testing.T) {
	// Wild early history followed by a dead-flat recent window. A short
	// lookback sees only zeros and must refuse rather than report a
	// stale risk number.
	rets := append(repeat(-0.03, 60), repeat(0.0, 60)...)
	bars := retBars(rets)

	full := NewES95Estimator(500, 1)
	es, err := full.Estimate(bars)
	require.NoError(t, err)
	assert.Greater(t, es, 0.0)

	recent := NewES95Estimator(50, 1)
	_, err = recent.Estimate(bars)
	assert.ErrorContains(t, err, "degenerate")
}

func TestEstimateInsufficientBars(t *testing.T) {
	bars := retBars(repeat(0.001, 29))

	_, err := NewES95Estimator(500, 1).Estimate(bars)

	assert.ErrorIs(t, err, models.ErrInsufficientBars)
}

func TestEstimateFlatWindow(t *testing.T) {
	bars := retBars(repeat(0.0, 100))

	_, err := NewES95Estimator(500, 1).Estimate(bars)

	assert.ErrorContains(t, err, "degenerate")
}

func TestNewES95EstimatorDefaults(t *testing.T) {
	e := NewES95Estimator(0, 0)

	assert.Equal(t, 500, e.lookback)
	assert.Equal(t, 1, e.horizonBars)
}
