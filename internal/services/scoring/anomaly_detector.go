package scoring

import (
	"context"
	"math"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
)

const (
	// return magnitude in sigma units that flags a shock
	shockSigma = 4.0
	// short/long vol ratio that flags a spike
	spikeRatio = 2.0
	// identical closes in a row that flag a dead feed
	staleRun = 12
)

// WindowAnomalyDetector flags price shocks, vol spikes and stale feeds.
// The scanner rejects any window with at least one anomaly.
type WindowAnomalyDetector struct{}

func NewWindowAnomalyDetector() *WindowAnomalyDetector { return &WindowAnomalyDetector{} }

func (d *WindowAnomalyDetector) Detect(ctx context.Context, symbol string, bars []models.Bar) ([]models.MarketAnomaly, error) {
	if len(bars) < 30 {
		return nil, models.ErrInsufficientBars
	}
	now := time.Now().UTC()
	rets := features.ComputeLogReturns(bars)
	var out []models.MarketAnomaly

	// shock: last return against trailing sigma excluding itself
	sigma := stddev(rets[:len(rets)-1])
	last := rets[len(rets)-1]
	if sigma > 0 {
		z := last / sigma
		if math.Abs(z) >= shockSigma {
			typ := "shock_up"
			if z < 0 {
				typ = "shock_down"
			}
			out = append(out, models.MarketAnomaly{
				Symbol: symbol, Timestamp: now, Type: typ, Severity: math.Abs(z),
			})
		}
	}

	// vol spike: short realized vol vs long realized vol
	bpy := bars[len(bars)-1].Timeframe.BarsPerYear()
	volShort := features.RealizedVolatility(rets, 5, bpy)
	volLong := features.RealizedVolatility(rets, 60, bpy)
	if volLong > 0 && volShort/volLong >= spikeRatio {
		out = append(out, models.MarketAnomaly{
			Symbol: symbol, Timestamp: now, Type: "vol_spike", Severity: volShort / volLong,
		})
	}

	// stale feed: a run of identical closes at the window tail
	run := 1
	for i := len(bars) - 1; i > 0 && bars[i].Close == bars[i-1].Close; i-- {
		run++
	}
	if run >= staleRun {
		out = append(out, models.MarketAnomaly{
			Symbol: symbol, Timestamp: now, Type: "stale_data", Severity: float64(run),
		})
	}

	return out, nil
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	sum2 := 0.0
	for _, x := range xs {
		d := x - mean
		sum2 += d * d
	}
	return math.Sqrt(sum2 / float64(len(xs)-1))
}

var _ domsvc.AnomalyDetector = (*WindowAnomalyDetector)(nil)
