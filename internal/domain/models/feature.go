package models

import "time"

// Feature layout indices. The ordered vector is the model input contract
// shared by the scanner, the trainer and the backtester.
const (
	FeatRet1 = iota
	FeatRet5
	FeatSMADist
	FeatRSI
	FeatZScore
	FeatATRRel
	FeatRealizedVol
	FeatRangeRatio
	FeatVolumeZ
	FeatSyntheticShare
	FeatureCount
)

// FeatureNames maps vector indices to stable names for logging and the
// analytics risk view.
var FeatureNames = [FeatureCount]string{
	"ret1", "ret5", "sma_dist", "rsi", "zscore",
	"atr_rel", "realized_vol", "range_ratio", "volume_z", "synthetic_share",
}

// FeatureVector is a computed feature snapshot for one (symbol, timeframe)
// window, ending at Timestamp.
type FeatureVector struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	LastClose float64   `json:"last_close"`
	ATR       float64   `json:"atr"`
	Values    []float64 `json:"values"`
}

// At returns the feature value at index i, zero when absent.
func (f FeatureVector) At(i int) float64 {
	if i < 0 || i >= len(f.Values) {
		return 0
	}
	return f.Values[i]
}

// SyntheticShare is the fraction of synthetic bars in the window, used as
// a data-quality penalty in scoring.
func (f FeatureVector) SyntheticShare() float64 { return f.At(FeatSyntheticShare) }

// Regime classifies market state for a symbol window.
type Regime struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	State      string    `json:"state"` // "trend_up", "trend_down", "range", "volatile"
	Confidence float64   `json:"confidence"`
}

// VolatilityForecast carries the sigma estimate used for vol scaling.
type VolatilityForecast struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Horizon   Timeframe `json:"horizon"`
	Forecast  float64   `json:"forecast"` // sigma forecast, per-bar
	Nowcast   float64   `json:"nowcast"`  // realized volatility now, annualized
	VolScale  float64   `json:"vol_scale"`
}

// MarketAnomaly flags a window the scanner must not trade.
type MarketAnomaly struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // "shock_up", "shock_down", "vol_spike", "stale_data"
	Severity  float64   `json:"severity"`
}

// EdgeScore is the scored model output for a candidate direction.
type EdgeScore struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	ProbaUp   float64   `json:"proba_up"`
	Agreement float64   `json:"agreement"` // ensemble member agreement in [0,1]
	QStar     float64   `json:"qstar"`
	Regime    string    `json:"regime"`
	Sigma     float64   `json:"sigma"`
}
