package scoring

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
)

// steppedBars builds an ascending M5 series where step(i) moves the
// close and the high/low wrap the move by 0.1.
func steppedBars(n int, step func(i int) float64) []models.Bar {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += step(i)
		bars[i] = models.Bar{
			Symbol:    "EURUSD",
			Timeframe: models.TFM5,
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 0.1,
			Low:       math.Min(open, price) - 0.1,
			Close:     price,
			Volume:    100,
		}
	}
	return bars
}

func TestRegimeTrendUp(t *testing.T) {
	d := NewSlopeRegimeDetector()
	bars := steppedBars(80, func(int) float64 { return 1 })

	reg, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	assert.Equal(t, "trend_up", reg.State)
	assert.Greater(t, reg.Confidence, 0.5)
}

func TestRegimeTrendDown(t *testing.T) {
	d := NewSlopeRegimeDetector()
	bars := steppedBars(80, func(int) float64 { return -1 })

	reg, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	assert.Equal(t, "trend_down", reg.State)
}

func TestRegimeRange(t *testing.T) {
	d := NewSlopeRegimeDetector()
	bars := steppedBars(80, func(int) float64 { return 0 })

	reg, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	assert.Equal(t, "range", reg.State)
	assert.InDelta(t, 1.0, reg.Confidence, 1e-9)
}

func TestRegimeVolatile(t *testing.T) {
	d := NewSlopeRegimeDetector()
	// Calm drift, then the last ten bars whip around: the short vol
	// window blows out against the long one.
	bars := steppedBars(80, func(i int) float64 {
		if i >= 70 {
			if i%2 == 0 {
				return 3
			}
			return -3
		}
		if i%2 == 0 {
			return 0.05
		}
		return -0.05
	})

	reg, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	assert.Equal(t, "volatile", reg.State)
}

func TestRegimeInsufficientBars(t *testing.T) {
	d := NewSlopeRegimeDetector()
	reg, err := d.Detect(context.Background(), "EURUSD", steppedBars(20, func(int) float64 { return 1 }))
	assert.ErrorIs(t, err, models.ErrInsufficientBars)
	assert.Equal(t, "range", reg.State)
}

func TestVolForecastSteadyMarket(t *testing.T) {
	f := NewEWMAVolForecaster()
	bars := steppedBars(150, func(i int) float64 {
		if i%2 == 0 {
			return 0.1
		}
		return -0.1
	})

	vf, err := f.Forecast(context.Background(), "EURUSD", models.TFM5, bars)
	require.NoError(t, err)
	assert.Positive(t, vf.Forecast)
	assert.Positive(t, vf.Nowcast)
	// EWMA sigma matches the long-run sigma in a steady market, so no
	// scaling applies.
	assert.Equal(t, 1.0, vf.VolScale)
	assert.Equal(t, models.TFM5, vf.Horizon)
}

func TestVolForecastInsufficient(t *testing.T) {
	f := NewEWMAVolForecaster()
	vf, err := f.Forecast(context.Background(), "EURUSD", models.TFM5, steppedBars(10, func(int) float64 { return 0.1 }))
	assert.ErrorIs(t, err, models.ErrInsufficientBars)
	assert.Equal(t, 1.0, vf.VolScale)
}

func TestVolScaleBounds(t *testing.T) {
	// Recent vol far above the reference window scales risk down.
	calm := make([]float64, 120)
	for i := range calm {
		calm[i] = 0.001
		if i%2 == 0 {
			calm[i] = -0.001
		}
	}
	assert.Equal(t, 0.6, volScale(calm, 0.01))

	// Recent vol far below reference scales risk up.
	assert.Equal(t, 1.2, volScale(calm, 0.0001))

	// Degenerate inputs stay neutral.
	assert.Equal(t, 1.0, volScale(calm, 0))
	assert.Equal(t, 1.0, volScale(make([]float64, 120), 0.01))
}

func TestAnomalyShock(t *testing.T) {
	d := NewWindowAnomalyDetector()
	bars := steppedBars(60, func(i int) float64 {
		if i == 59 {
			return 8
		}
		if i%2 == 0 {
			return 0.1
		}
		return -0.1
	})

	anomalies, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	types := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, "shock_up")
}

func TestAnomalyStaleFeed(t *testing.T) {
	d := NewWindowAnomalyDetector()
	bars := steppedBars(60, func(i int) float64 {
		if i >= 45 {
			return 0
		}
		if i%2 == 0 {
			return 0.1
		}
		return -0.1
	})

	anomalies, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	found := false
	for _, a := range anomalies {
		if a.Type == "stale_data" {
			found = true
			assert.GreaterOrEqual(t, a.Severity, float64(staleRun))
		}
	}
	assert.True(t, found, "expected stale_data flag")
}

func TestAnomalyCleanWindow(t *testing.T) {
	d := NewWindowAnomalyDetector()
	bars := steppedBars(60, func(i int) float64 {
		if i%2 == 0 {
			return 0.1
		}
		return -0.1
	})

	anomalies, err := d.Detect(context.Background(), "EURUSD", bars)
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestAnomalyInsufficientBars(t *testing.T) {
	d := NewWindowAnomalyDetector()
	_, err := d.Detect(context.Background(), "EURUSD", steppedBars(10, func(int) float64 { return 0.1 }))
	assert.ErrorIs(t, err, models.ErrInsufficientBars)
}

func cleanVector() *models.FeatureVector {
	v := make([]float64, models.FeatureCount)
	v[models.FeatRangeRatio] = 1.0
	return &models.FeatureVector{
		Symbol:    "EURUSD",
		Timeframe: models.TFM5,
		Timestamp: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
		LastClose: 100,
		Values:    v,
	}
}

func TestQStarFullAlignment(t *testing.T) {
	// A 0.60 probability saturates the edge component; with full
	// agreement, an aligned trend and a clean window every component
	// maxes out.
	q := QStar(0.60, 1.0, cleanVector(), "trend_up")
	assert.InDelta(t, 100, q, 1e-9)
}

func TestQStarCounterTrendDiscount(t *testing.T) {
	aligned := QStar(0.60, 1.0, cleanVector(), "trend_up")
	counter := QStar(0.60, 1.0, cleanVector(), "trend_down")
	assert.Greater(t, aligned, counter)
	// Only the regime component differs: 0.25*(1.0-0.2) = 20 points.
	assert.InDelta(t, 20, aligned-counter, 1e-9)
}

func TestQStarNeutralProbability(t *testing.T) {
	q := QStar(0.5, 0.0, cleanVector(), "range")
	// edge=0, agreement=0, regime=0.5, quality=1.
	assert.InDelta(t, 100*(0.25*0.5+0.15), q, 1e-9)
}

func TestQStarSyntheticPenalty(t *testing.T) {
	fv := cleanVector()
	fv.Values[models.FeatSyntheticShare] = 0.4
	dirty := QStar(0.60, 1.0, fv, "trend_up")
	clean := QStar(0.60, 1.0, cleanVector(), "trend_up")
	assert.InDelta(t, 100*0.15*0.4, clean-dirty, 1e-9)
}

func TestQStarRangeCompressionPenalty(t *testing.T) {
	fv := cleanVector()
	fv.Values[models.FeatRangeRatio] = 5.0
	q := QStar(0.60, 1.0, fv, "trend_up")
	// penalty = (5-3)*0.05 = 0.10 off the clamped sum.
	assert.InDelta(t, 90, q, 1e-9)
}

func TestScorerRequiresFittedModel(t *testing.T) {
	s := NewQStarScorer(inference.NewRegistry())
	_, err := s.Score(context.Background(), cleanVector(), models.Regime{State: "range"})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestScorerWithRegistryEntry(t *testing.T) {
	reg := inference.NewRegistry()
	// A prior-only ensemble is deterministic without fitting.
	tr := inference.NewTrainer(inference.TrainerConfig{PriorWeight: 1}, nil)
	ens, err := tr.NewEnsemble()
	require.NoError(t, err)
	reg.Put("EURUSD", models.TFM5, ens, 300)

	s := NewQStarScorer(reg)
	fv := cleanVector()
	fv.Values[models.FeatRet5] = 0.05
	fv.Values[models.FeatRealizedVol] = 0.12

	score, err := s.Score(context.Background(), fv, models.Regime{State: "trend_up"})
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", score.Symbol)
	assert.Equal(t, fv.Timestamp, score.Timestamp)
	assert.Greater(t, score.ProbaUp, 0.5)
	assert.Equal(t, 1.0, score.Agreement)
	assert.Equal(t, "trend_up", score.Regime)
	assert.Equal(t, 0.12, score.Sigma)
	assert.Greater(t, score.QStar, 0.0)
	assert.LessOrEqual(t, score.QStar, 100.0)
}
