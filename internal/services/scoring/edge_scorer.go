package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// Q* component weights. Edge saturates at a 20-point probability margin,
// so a 0.60 up-probability already earns the full edge component.
const (
	wEdge    = 0.40
	wAgree   = 0.20
	wRegime  = 0.25
	wQuality = 0.15

	edgeFullScale = 0.20

	// range_ratio above this marks a compressed window, penalized because
	// breakout direction is close to a coin flip
	rangeRatioCeiling = 3.0
)

// QStarScorer maps ensemble output to the 0-100 quality score served with
// every signal. It requires a fitted model in the registry for the vector's
// (symbol, timeframe) pair.
type QStarScorer struct {
	registry *inference.Registry
	logger   *logger.Logger
}

func NewQStarScorer(registry *inference.Registry) *QStarScorer {
	return &QStarScorer{registry: registry}
}

func (s *QStarScorer) SetLogger(l *logger.Logger) {
	s.logger = l
}

func (s *QStarScorer) Score(ctx context.Context, fv *models.FeatureVector, regime models.Regime) (models.EdgeScore, error) {
	if err := ctx.Err(); err != nil {
		return models.EdgeScore{}, err
	}
	ens, _, ok := s.registry.Get(fv.Symbol, fv.Timeframe)
	if !ok {
		return models.EdgeScore{}, fmt.Errorf("score %s/%s: no fitted model: %w", fv.Symbol, fv.Timeframe, models.ErrNotFound)
	}

	proba, agreement := ens.Predict(fv.Values)
	qstar := QStar(proba, agreement, fv, regime.State)

	if s.logger != nil {
		s.logger.Debug("edge scored",
			logger.String("symbol", fv.Symbol),
			logger.String("timeframe", string(fv.Timeframe)),
			logger.Float64("proba_up", proba),
			logger.Float64("agreement", agreement),
			logger.Float64("qstar", qstar),
			logger.String("regime", regime.State),
		)
	}

	return models.EdgeScore{
		Symbol:    fv.Symbol,
		Timestamp: fv.Timestamp,
		ProbaUp:   proba,
		Agreement: agreement,
		QStar:     qstar,
		Regime:    regime.State,
		Sigma:     fv.At(models.FeatRealizedVol),
	}, nil
}

// QStar computes the 0-100 quality score from model output and window
// features. The backtest engine calls this directly with its own fitted
// ensemble instead of going through the registry.
func QStar(proba, agreement float64, fv *models.FeatureVector, regimeState string) float64 {
	edge := math.Min(1, math.Abs(2*proba-1)/edgeFullScale)
	align := regimeAlignment(proba, regimeState)
	quality := 1 - clamp01(fv.SyntheticShare())
	penalty := rangePenalty(fv.At(models.FeatRangeRatio))
	return 100 * clamp01(wEdge*edge+wAgree*agreement+wRegime*align+wQuality*quality-penalty)
}

// regimeAlignment rewards trading with the detected trend and discounts
// volatile or counter-trend setups.
func regimeAlignment(proba float64, state string) float64 {
	up := proba >= 0.5
	switch state {
	case "trend_up":
		if up {
			return 1.0
		}
		return 0.2
	case "trend_down":
		if !up {
			return 1.0
		}
		return 0.2
	case "volatile":
		return 0.3
	default: // "range"
		return 0.5
	}
}

func rangePenalty(rangeRatio float64) float64 {
	if rangeRatio <= rangeRatioCeiling {
		return 0
	}
	return math.Min(0.25, (rangeRatio-rangeRatioCeiling)*0.05)
}

var _ domsvc.EdgeScorer = (*QStarScorer)(nil)
