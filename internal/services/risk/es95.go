package risk

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
)

const (
	esTailPercentile = 5.0
	// minimum tail observations before the empirical estimate is trusted
	esMinTailSamples = 5
	// normal-approximation ES multiplier at the 95% level
	esNormalFactor = 2.06
)

// ES95Estimator computes the per-unit 95% expected shortfall of bar
// returns: the average loss across the worst 5% of bars, scaled to the
// holding horizon. The sizer divides the risk budget by this number.
type ES95Estimator struct {
	lookback    int
	horizonBars int
}

func NewES95Estimator(lookback, horizonBars int) *ES95Estimator {
	if lookback <= 0 {
		lookback = 500
	}
	if horizonBars <= 0 {
		horizonBars = 1
	}
	return &ES95Estimator{lookback: lookback, horizonBars: horizonBars}
}

// Estimate returns the fractional per-unit ES95 for the window. Multiply
// by entry price and position size to get currency risk.
func (e *ES95Estimator) Estimate(bars []models.Bar) (float64, error) {
	rets := features.ComputeLogReturns(bars)
	if len(rets) < 30 {
		return 0, models.ErrInsufficientBars
	}
	if len(rets) > e.lookback {
		rets = rets[len(rets)-e.lookback:]
	}

	es := ExpectedShortfall(rets) * math.Sqrt(float64(e.horizonBars))
	if es <= 0 || math.IsNaN(es) || math.IsInf(es, 0) {
		return 0, fmt.Errorf("es95: degenerate return window (%d returns)", len(rets))
	}
	return es, nil
}

// ExpectedShortfall is the per-sample 95% ES of a return series: the
// empirical tail mean when the tail is deep enough, the normal
// approximation otherwise. The backtest report uses it unscaled.
func ExpectedShortfall(rets []float64) float64 {
	if es := empiricalTailLoss(rets); es > 0 {
		return es
	}
	return normalTailLoss(rets)
}

// empiricalTailLoss is the mean magnitude of returns at or below the 5th
// percentile. It returns 0 when the tail is too thin to trust.
func empiricalTailLoss(rets []float64) float64 {
	cutoff, err := stats.Percentile(rets, esTailPercentile)
	if err != nil {
		return 0
	}
	var sum float64
	var n int
	for _, r := range rets {
		if r <= cutoff {
			sum += r
			n++
		}
	}
	if n < esMinTailSamples {
		return 0
	}
	mean := sum / float64(n)
	if mean >= 0 {
		return 0
	}
	return -mean
}

func normalTailLoss(rets []float64) float64 {
	sigma, err := stats.StandardDeviationSample(rets)
	if err != nil {
		return 0
	}
	return esNormalFactor * sigma
}
