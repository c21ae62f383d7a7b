package service

import (
	"context"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
)

// RegimeDetector classifies the market regime from a bar window.
type RegimeDetector interface {
	Detect(ctx context.Context, symbol string, bars []models.Bar) (models.Regime, error)
}

// VolatilityForecaster estimates sigma and the vol-scaling factor for a
// (symbol, timeframe) window.
type VolatilityForecaster interface {
	Forecast(ctx context.Context, symbol string, tf models.Timeframe, bars []models.Bar) (models.VolatilityForecast, error)
}

// AnomalyDetector flags windows the scanner must reject outright.
type AnomalyDetector interface {
	Detect(ctx context.Context, symbol string, bars []models.Bar) ([]models.MarketAnomaly, error)
}

// EdgeScorer turns a feature vector into a scored directional edge.
type EdgeScorer interface {
	Score(ctx context.Context, fv *models.FeatureVector, regime models.Regime) (models.EdgeScore, error)
}

// Sizer converts a candidate into a served signal for a given equity, or
// rejects it (nil signal) when sizing clamps below the minimum.
type Sizer interface {
	Size(ctx context.Context, c *models.AlphaCandidate, equity float64) (*models.SignalData, error)
}

// Governor is the risk state machine fed by execution accounting.
type Governor interface {
	Snapshot() models.RiskSnapshot
	Limits() models.RiskLimits
	ApplyExecution(ctx context.Context, e *models.ExecutionReport) error
	// ReserveExposure records served-signal notional against the exposure
	// cap. It reports false when the reservation would breach the cap.
	ReserveExposure(signalID, symbol string, notional float64, ttl time.Duration) bool
	ExposureBySymbol() map[string]float64
	TransitionsToday() []models.GovernorTransition
	Reset(reason string)
}
