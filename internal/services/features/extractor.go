package features

import (
	"math"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

// MinBars is the shortest window Extract accepts. The longest lookback is
// the 20-bar z-score stacked on the 14-bar RSI seed.
const MinBars = 40

const (
	smaPeriod  = 20
	rsiPeriod  = 14
	zWindow    = 20
	atrPeriod  = 14
	volWindow  = 20
	ret5Period = 5
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(bars)-1, or nil if insufficient data.
func ComputeLogReturns(bars []models.Bar) []float64 {
	if len(bars) < 2 {
		return nil
	}
	out := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		cur := bars[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over a rolling
// window using the provided number of bars per year. Returns the latest
// window sigma.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	// annualize
	return math.Sqrt(variance * barsPerYear)
}

// Extractor computes the ordered feature vector the models consume.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract builds the feature snapshot for the window ending at the last
// bar. Bars must be ascending and share one (symbol, timeframe).
func (e *Extractor) Extract(bars []models.Bar) (*models.FeatureVector, error) {
	if len(bars) < MinBars {
		return nil, models.ErrInsufficientBars
	}
	last := bars[len(bars)-1]
	rets := ComputeLogReturns(bars)

	v := make([]float64, models.FeatureCount)
	v[models.FeatRet1] = rets[len(rets)-1]
	v[models.FeatRet5] = sumTail(rets, ret5Period)

	if sma := SMA(bars, smaPeriod); sma > 0 {
		v[models.FeatSMADist] = (last.Close - sma) / sma
	}
	v[models.FeatRSI] = WilderRSI(bars, rsiPeriod) / 100

	z, err := ZScore(bars, zWindow)
	if err != nil {
		return nil, err
	}
	v[models.FeatZScore] = z

	atr := ATR(bars, atrPeriod)
	if last.Close > 0 {
		v[models.FeatATRRel] = atr / last.Close
	}
	v[models.FeatRealizedVol] = RealizedVolatility(rets, volWindow, last.Timeframe.BarsPerYear())
	if atr > 0 {
		v[models.FeatRangeRatio] = last.Range() / atr
	}
	v[models.FeatVolumeZ] = VolumeZScore(bars, volWindow)
	v[models.FeatSyntheticShare] = SyntheticShare(bars)

	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}

	return &models.FeatureVector{
		Symbol:    last.Symbol,
		Timeframe: last.Timeframe,
		Timestamp: last.Timestamp,
		LastClose: last.Close,
		ATR:       atr,
		Values:    v,
	}, nil
}

// ExtractSeries builds one vector per bar from the warmup point onward,
// for trainer and backtester use. Index i in the result aligns with bar
// MinBars-1+i.
func (e *Extractor) ExtractSeries(bars []models.Bar) ([]models.FeatureVector, error) {
	if len(bars) < MinBars {
		return nil, models.ErrInsufficientBars
	}
	out := make([]models.FeatureVector, 0, len(bars)-MinBars+1)
	for i := MinBars; i <= len(bars); i++ {
		fv, err := e.Extract(bars[:i])
		if err != nil {
			return nil, err
		}
		out = append(out, *fv)
	}
	return out, nil
}

func sumTail(xs []float64, n int) float64 {
	if len(xs) < n {
		n = len(xs)
	}
	s := 0.0
	for i := len(xs) - n; i < len(xs); i++ {
		s += xs[i]
	}
	return s
}
