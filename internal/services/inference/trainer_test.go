package inference

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
)

func testTrainerConfig() TrainerConfig {
	return TrainerConfig{
		LearningRate:   0.1,
		Epochs:         40,
		BatchSize:      32,
		L2Penalty:      0.001,
		BoostRounds:    30,
		BoostShrinkage: 0.1,
		LogitWeight:    0.45,
		BoostWeight:    0.35,
		PriorWeight:    0.20,
		Seed:           7,
	}
}

// separable builds rows where the sign of feature 0 decides the label.
func separable(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0 := 1.0
		if i%2 == 0 {
			x0 = -1.0
		}
		X[i] = []float64{x0, float64(i%3) * 0.1}
		if x0 > 0 {
			y[i] = 1
		}
	}
	return X, y
}

func trendBars(n int, step float64) []models.Bar {
	t0 := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		price += step
		bars[i] = models.Bar{
			Symbol:    "EURUSD",
			Timeframe: models.TFM5,
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 0.05,
			Low:       math.Min(open, price) - 0.05,
			Close:     price,
			Volume:    100,
		}
	}
	return bars
}

func TestLogitLearnsSeparableData(t *testing.T) {
	m := NewLogit(LogitConfig{LearningRate: 0.5, Epochs: 100, BatchSize: 16, Seed: 1})
	X, y := separable(200)
	require.NoError(t, m.Fit(X, y))

	assert.Greater(t, m.Predict([]float64{1, 0}), 0.7)
	assert.Less(t, m.Predict([]float64{-1, 0}), 0.3)
}

func TestLogitUnfittedIsNeutral(t *testing.T) {
	m := NewLogit(LogitConfig{})
	assert.Equal(t, 0.5, m.Predict([]float64{1, 2, 3}))
}

func TestLogitDeterministicForSeed(t *testing.T) {
	X, y := separable(150)
	probe := []float64{0.4, 0.1}

	a := NewLogit(LogitConfig{LearningRate: 0.2, Epochs: 20, BatchSize: 16, Seed: 42})
	require.NoError(t, a.Fit(X, y))
	b := NewLogit(LogitConfig{LearningRate: 0.2, Epochs: 20, BatchSize: 16, Seed: 42})
	require.NoError(t, b.Fit(X, y))

	assert.Equal(t, a.Predict(probe), b.Predict(probe))
	assert.Equal(t, a.weights, b.weights)
}

func TestLogitFitRejectsMismatch(t *testing.T) {
	m := NewLogit(LogitConfig{})
	assert.Error(t, m.Fit([][]float64{{1}}, []float64{1, 0}))
	assert.Error(t, m.Fit(nil, nil))
}

func TestBoostLearnsThreshold(t *testing.T) {
	m := NewBoost(BoostConfig{Rounds: 40, Shrinkage: 0.2})
	n := 200
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i) / float64(n)
		X[i] = []float64{v}
		if v > 0.5 {
			y[i] = 1
		}
	}
	require.NoError(t, m.Fit(X, y))

	assert.Greater(t, m.Predict([]float64{0.9}), 0.7)
	assert.Less(t, m.Predict([]float64{0.1}), 0.3)
}

func TestBoostBaseRate(t *testing.T) {
	// With no informative feature the boost should stay near the class
	// prior.
	m := NewBoost(BoostConfig{Rounds: 5, Shrinkage: 0.1})
	X := [][]float64{{0}, {0}, {0}, {0}}
	y := []float64{1, 1, 1, 0}
	require.NoError(t, m.Fit(X, y))
	assert.InDelta(t, 0.75, m.Predict([]float64{0}), 0.15)
}

func TestMomentumPrior(t *testing.T) {
	p := NewMomentumPrior()

	up := make([]float64, models.FeatureCount)
	up[models.FeatRet5] = 0.05
	up[models.FeatRSI] = 0.5
	assert.Greater(t, p.Predict(up), 0.5)

	down := make([]float64, models.FeatureCount)
	down[models.FeatRet5] = -0.05
	down[models.FeatRSI] = 0.5
	assert.Less(t, p.Predict(down), 0.5)

	// Votes are capped so the prior can never dominate the blend.
	extreme := make([]float64, models.FeatureCount)
	extreme[models.FeatRet5] = 10
	assert.LessOrEqual(t, p.Predict(extreme), 0.85)
	extreme[models.FeatRet5] = -10
	assert.GreaterOrEqual(t, p.Predict(extreme), 0.15)
}

type fixedModel struct {
	name string
	p    float64
}

func (m fixedModel) Name() string { return m.name }

func (m fixedModel) Fit([][]float64, []float64) error { return nil }

func (m fixedModel) Predict([]float64) float64 { return m.p }

func TestEnsembleBlendAndAgreement(t *testing.T) {
	ens, err := NewEnsemble(
		[]Model{fixedModel{"a", 0.8}, fixedModel{"b", 0.6}, fixedModel{"c", 0.4}},
		[]float64{1, 1, 2},
	)
	require.NoError(t, err)

	proba, agreement := ens.Predict(nil)
	// Normalized weights 0.25/0.25/0.5 blend to 0.55; two of three
	// members vote with the blend.
	assert.InDelta(t, 0.55, proba, 1e-9)
	assert.InDelta(t, 2.0/3.0, agreement, 1e-9)
}

func TestEnsembleDropsNonPositiveWeights(t *testing.T) {
	ens, err := NewEnsemble(
		[]Model{fixedModel{"a", 0.9}, fixedModel{"b", 0.1}},
		[]float64{1, 0},
	)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, ens.Members())

	proba, agreement := ens.Predict(nil)
	assert.InDelta(t, 0.9, proba, 1e-9)
	assert.Equal(t, 1.0, agreement)
}

func TestEnsembleInvalid(t *testing.T) {
	_, err := NewEnsemble(nil, nil)
	assert.Error(t, err)
	_, err = NewEnsemble([]Model{fixedModel{"a", 0.5}}, []float64{0})
	assert.Error(t, err)
	_, err = NewEnsemble([]Model{fixedModel{"a", 0.5}}, []float64{1, 2})
	assert.Error(t, err)
}

func TestBuildDatasetLabels(t *testing.T) {
	tr := NewTrainer(testTrainerConfig(), features.NewExtractor())
	bars := trendBars(features.MinBars+10, 0.5)

	X, y, err := tr.BuildDataset(bars)
	require.NoError(t, err)
	require.Len(t, X, len(y))
	// One vector per bar from the warmup point on, minus the unlabeled
	// last one.
	assert.Len(t, X, 10)
	for i, label := range y {
		assert.Equal(t, 1.0, label, "row %d of a rising series", i)
	}
	for _, row := range X {
		assert.Len(t, row, models.FeatureCount)
	}
}

func TestBuildDatasetTooShort(t *testing.T) {
	tr := NewTrainer(testTrainerConfig(), features.NewExtractor())
	_, _, err := tr.BuildDataset(trendBars(features.MinBars, 0.5))
	assert.ErrorIs(t, err, models.ErrInsufficientBars)
}

func TestTrainDeterministicForSeed(t *testing.T) {
	cfg := testTrainerConfig()
	tr := NewTrainer(cfg, features.NewExtractor())
	bars := trendBars(features.MinBars+60, 0.3)
	ctx := context.Background()

	a, err := tr.Train(ctx, bars)
	require.NoError(t, err)
	b, err := tr.Train(ctx, bars)
	require.NoError(t, err)

	probe := make([]float64, models.FeatureCount)
	probe[models.FeatRet1] = 0.001
	probe[models.FeatRet5] = 0.004
	pa, aa := a.Predict(probe)
	pb, ab := b.Predict(probe)
	assert.Equal(t, pa, pb)
	assert.Equal(t, aa, ab)
}

func TestTrainHonorsContext(t *testing.T) {
	tr := NewTrainer(testTrainerConfig(), features.NewExtractor())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Train(ctx, trendBars(features.MinBars+60, 0.3))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryRefitCycle(t *testing.T) {
	reg := NewRegistry()
	assert.True(t, reg.NeedsRefit("EURUSD", models.TFM5, time.Hour))

	ens, err := NewEnsemble([]Model{fixedModel{"a", 0.6}}, []float64{1})
	require.NoError(t, err)
	reg.Put("EURUSD", models.TFM5, ens, 500)

	got, fittedAt, ok := reg.Get("EURUSD", models.TFM5)
	require.True(t, ok)
	assert.Same(t, ens, got)
	assert.WithinDuration(t, time.Now().UTC(), fittedAt, time.Minute)

	assert.False(t, reg.NeedsRefit("EURUSD", models.TFM5, time.Hour))
	assert.True(t, reg.NeedsRefit("EURUSD", models.TFM5, 0))
	assert.True(t, reg.NeedsRefit("GBPUSD", models.TFM5, time.Hour))
	assert.Equal(t, 1, reg.Size())
}
