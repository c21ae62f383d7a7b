package scoring

import (
	"context"
	"math"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
)

// RiskMetrics-style decay for the EWMA variance forecast.
const ewmaLambda = 0.94

// EWMAVolForecaster produces a per-bar sigma forecast from exponentially
// weighted squared returns, plus the vol-scaling factor applied to
// position sizes: calm markets scale up toward 1.2, stressed markets
// scale down toward 0.6.
type EWMAVolForecaster struct{}

func NewEWMAVolForecaster() *EWMAVolForecaster { return &EWMAVolForecaster{} }

func (f *EWMAVolForecaster) Forecast(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) (models.VolatilityForecast, error) {
	result := models.VolatilityForecast{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Horizon:   tf,
		VolScale:  1.0,
	}
	rets := features.ComputeLogReturns(bars)
	if len(rets) < 30 {
		return result, models.ErrInsufficientBars
	}

	variance := 0.0
	for i, r := range rets {
		if i == 0 {
			variance = r * r
			continue
		}
		variance = ewmaLambda*variance + (1-ewmaLambda)*r*r
	}
	result.Forecast = math.Sqrt(variance)
	result.Nowcast = features.RealizedVolatility(rets, 20, tf.BarsPerYear())
	result.VolScale = volScale(rets, result.Forecast)
	return result, nil
}

// volScale compares the EWMA sigma with the long-window sigma. Below
// normal scales risk up, above normal scales it down, clamped to
// [0.6, 1.2].
func volScale(rets []float64, sigmaNow float64) float64 {
	window := 120
	if len(rets) < window {
		window = len(rets)
	}
	sum2 := 0.0
	for i := len(rets) - window; i < len(rets); i++ {
		sum2 += rets[i] * rets[i]
	}
	sigmaRef := math.Sqrt(sum2 / float64(window))
	if sigmaRef <= 0 || sigmaNow <= 0 {
		return 1.0
	}
	ratio := sigmaNow / sigmaRef
	scale := 1.0
	switch {
	case ratio < 0.75:
		scale = 1.2
	case ratio < 0.95:
		scale = 1.1
	case ratio > 1.6:
		scale = 0.6
	case ratio > 1.25:
		scale = 0.8
	}
	return scale
}

var _ domsvc.VolatilityForecaster = (*EWMAVolForecaster)(nil)
