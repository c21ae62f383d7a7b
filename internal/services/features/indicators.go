package features

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

// SMA computes the simple moving average of the last period closes.
// Returns 0 when there is not enough data.
func SMA(bars []models.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return 0
	}
	sum := 0.0
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// WilderRSI computes the Wilder-smoothed RSI over the closes. Returns 50
// (neutral) when there is not enough data, 100/0 at the one-sided extremes.
func WilderRSI(bars []models.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50
	}
	var avgGain, avgLoss float64
	start := len(bars) - period - 1
	for i := start + 1; i <= start+period; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := start + period + 1; i < len(bars); i++ {
		delta := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ZScore computes the z-score of the last close against the trailing
// window. Zero-variance windows clamp to 0.
func ZScore(bars []models.Bar, window int) (float64, error) {
	if window <= 1 || len(bars) < window {
		return 0, fmt.Errorf("zscore: need %d bars, have %d", window, len(bars))
	}
	closes := make([]float64, window)
	for i := 0; i < window; i++ {
		closes[i] = bars[len(bars)-window+i].Close
	}
	mean, err := stats.Mean(closes)
	if err != nil {
		return 0, fmt.Errorf("zscore mean: %w", err)
	}
	sd, err := stats.StandardDeviationSample(closes)
	if err != nil {
		return 0, fmt.Errorf("zscore stddev: %w", err)
	}
	if sd == 0 || math.IsNaN(sd) {
		return 0, nil
	}
	return (closes[window-1] - mean) / sd, nil
}

// ATR computes the Wilder-smoothed average true range.
func ATR(bars []models.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		tr := bars[i].High - bars[i].Low
		if hc := math.Abs(bars[i].High - bars[i-1].Close); hc > tr {
			tr = hc
		}
		if lc := math.Abs(bars[i].Low - bars[i-1].Close); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
	}
	if len(trs) < period {
		return 0
	}
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trs[i]
	}
	atr /= float64(period)
	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
	}
	return atr
}

// VolumeZScore computes the z-score of the last bar's volume against the
// trailing window. Windows without volume data clamp to 0.
func VolumeZScore(bars []models.Bar, window int) float64 {
	if window <= 1 || len(bars) < window {
		return 0
	}
	vols := make([]float64, window)
	allZero := true
	for i := 0; i < window; i++ {
		v := bars[len(bars)-window+i].Volume
		vols[i] = v
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		return 0
	}
	mean, err := stats.Mean(vols)
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(vols)
	if err != nil || sd == 0 || math.IsNaN(sd) {
		return 0
	}
	return (vols[window-1] - mean) / sd
}

// SyntheticShare returns the fraction of gap-filled bars in the window.
func SyntheticShare(bars []models.Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	n := 0
	for _, b := range bars {
		if b.IsSynthetic {
			n++
		}
	}
	return float64(n) / float64(len(bars))
}
