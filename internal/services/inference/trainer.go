package inference

import (
	"context"
	"fmt"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
)

// TrainerConfig carries the fitting hyperparameters and member weights.
type TrainerConfig struct {
	LearningRate   float64
	Epochs         int
	BatchSize      int
	L2Penalty      float64
	BoostRounds    int
	BoostShrinkage float64
	LogitWeight    float64
	BoostWeight    float64
	PriorWeight    float64
	Seed           int64
}

// Trainer turns bar history into fitted ensembles.
type Trainer struct {
	cfg TrainerConfig
	ex  *features.Extractor
}

func NewTrainer(cfg TrainerConfig, ex *features.Extractor) *Trainer {
	return &Trainer{cfg: cfg, ex: ex}
}

// BuildDataset extracts the feature series and labels each vector with
// the next bar's close direction. The last vector has no next bar and is
// dropped.
func (t *Trainer) BuildDataset(bars []models.Bar) ([][]float64, []float64, error) {
	series, err := t.ex.ExtractSeries(bars)
	if err != nil {
		return nil, nil, err
	}
	if len(series) < 2 {
		return nil, nil, models.ErrInsufficientBars
	}
	X := make([][]float64, 0, len(series)-1)
	y := make([]float64, 0, len(series)-1)
	for i := 0; i < len(series)-1; i++ {
		cur := series[i].LastClose
		next := series[i+1].LastClose
		if cur <= 0 || next <= 0 {
			continue
		}
		X = append(X, series[i].Values)
		if next > cur {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}
	if len(X) == 0 {
		return nil, nil, models.ErrInsufficientBars
	}
	return X, y, nil
}

// NewEnsemble constructs the configured member set, unfitted.
func (t *Trainer) NewEnsemble() (*Ensemble, error) {
	logit := NewLogit(LogitConfig{
		LearningRate: t.cfg.LearningRate,
		Epochs:       t.cfg.Epochs,
		BatchSize:    t.cfg.BatchSize,
		L2Penalty:    t.cfg.L2Penalty,
		Seed:         t.cfg.Seed,
	})
	boost := NewBoost(BoostConfig{
		Rounds:    t.cfg.BoostRounds,
		Shrinkage: t.cfg.BoostShrinkage,
	})
	prior := NewMomentumPrior()
	return NewEnsemble(
		[]Model{logit, boost, prior},
		[]float64{t.cfg.LogitWeight, t.cfg.BoostWeight, t.cfg.PriorWeight},
	)
}

// Train fits a fresh ensemble on the bar history.
func (t *Trainer) Train(ctx context.Context, bars []models.Bar) (*Ensemble, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	X, y, err := t.BuildDataset(bars)
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ens, err := t.NewEnsemble()
	if err != nil {
		return nil, err
	}
	if err := ens.Fit(X, y); err != nil {
		return nil, fmt.Errorf("fit ensemble: %w", err)
	}
	return ens, nil
}
