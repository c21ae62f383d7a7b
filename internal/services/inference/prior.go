package inference

import (
	"math"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

// MomentumPrior is a fixed heuristic member. It leans with short-term
// momentum and mean-reverts stretched RSI readings; its vote is capped so
// the trained members dominate.
type MomentumPrior struct{}

func NewMomentumPrior() *MomentumPrior { return &MomentumPrior{} }

func (m *MomentumPrior) Name() string { return "momentum_prior" }

func (m *MomentumPrior) Fit(X [][]float64, y []float64) error { return nil }

func (m *MomentumPrior) Predict(features []float64) float64 {
	ret5 := at(features, models.FeatRet5)
	rsi := at(features, models.FeatRSI)

	p := 0.5 + 0.25*math.Tanh(ret5*60)
	// fade overbought/oversold extremes
	if rsi > 0.7 {
		p -= 0.1 * (rsi - 0.7) / 0.3
	} else if rsi < 0.3 {
		p += 0.1 * (0.3 - rsi) / 0.3
	}
	if p < 0.15 {
		p = 0.15
	} else if p > 0.85 {
		p = 0.85
	}
	return p
}

func at(features []float64, i int) float64 {
	if i < 0 || i >= len(features) {
		return 0
	}
	return features[i]
}
