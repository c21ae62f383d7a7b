package scoring

import (
	"context"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
)

const (
	regimeSMAPeriod = 20
	regimeSlopeLag  = 10
	// slope in ATR units that separates trend from range
	regimeTrendThreshold = 0.8
	// short/long realized vol ratio that flags a volatile regime
	regimeVolRatio = 1.6
)

// SlopeRegimeDetector classifies trend/range/volatile from the SMA slope
// measured in ATR units and the short-to-long realized vol ratio.
type SlopeRegimeDetector struct{}

func NewSlopeRegimeDetector() *SlopeRegimeDetector { return &SlopeRegimeDetector{} }

func (d *SlopeRegimeDetector) Detect(ctx context.Context, symbol string, bars []models.Bar) (models.Regime, error) {
	result := models.Regime{Symbol: symbol, Timestamp: time.Now().UTC(), State: "range", Confidence: 0.5}
	need := regimeSMAPeriod + regimeSlopeLag
	if len(bars) < need+1 {
		return result, models.ErrInsufficientBars
	}

	rets := features.ComputeLogReturns(bars)
	bpy := bars[len(bars)-1].Timeframe.BarsPerYear()
	volShort := features.RealizedVolatility(rets, 10, bpy)
	volLong := features.RealizedVolatility(rets, 60, bpy)
	if volLong > 0 && volShort/volLong > regimeVolRatio {
		result.State = "volatile"
		result.Confidence = clamp01((volShort/volLong - 1) / regimeVolRatio)
		return result, nil
	}

	smaNow := features.SMA(bars, regimeSMAPeriod)
	smaThen := features.SMA(bars[:len(bars)-regimeSlopeLag], regimeSMAPeriod)
	atr := features.ATR(bars, 14)
	if atr <= 0 || smaNow == 0 || smaThen == 0 {
		return result, nil
	}

	slope := (smaNow - smaThen) / atr
	switch {
	case slope > regimeTrendThreshold:
		result.State = "trend_up"
		result.Confidence = clamp01(slope / (2 * regimeTrendThreshold))
	case slope < -regimeTrendThreshold:
		result.State = "trend_down"
		result.Confidence = clamp01(-slope / (2 * regimeTrendThreshold))
	default:
		result.State = "range"
		result.Confidence = clamp01(1 - abs(slope)/regimeTrendThreshold)
	}
	return result, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

var _ domsvc.RegimeDetector = (*SlopeRegimeDetector)(nil)
