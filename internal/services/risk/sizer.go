package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// SizerConfig carries per-trade sizing parameters.
type SizerConfig struct {
	RiskPerTrade float64
	MinPosition  float64
	MaxPosition  float64
	// fallback exposure hold duration when a candidate has no expiry
	ExposureTTL time.Duration
}

// ESSizer converts candidates into served signals with expected-shortfall
// risk budgeting: size = budget / (ES95 x entry). The budget already
// reflects the governor multiplier and the vol scale, so position sizes
// shrink as the account or the market deteriorates.
type ESSizer struct {
	cfg      SizerConfig
	governor domsvc.Governor
	logger   *logger.Logger
}

func NewESSizer(cfg SizerConfig, governor domsvc.Governor) *ESSizer {
	if cfg.MinPosition <= 0 {
		cfg.MinPosition = 0.01
	}
	if cfg.ExposureTTL <= 0 {
		cfg.ExposureTTL = 15 * time.Minute
	}
	return &ESSizer{cfg: cfg, governor: governor}
}

func (s *ESSizer) SetLogger(l *logger.Logger) {
	s.logger = l
}

func (s *ESSizer) Size(ctx context.Context, c *models.AlphaCandidate, equity float64) (*models.SignalData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if equity <= 0 {
		return nil, fmt.Errorf("size %s: equity must be positive, got %v", c.Symbol, equity)
	}
	snap := s.governor.Snapshot()
	if !snap.State.Tradable() {
		return nil, fmt.Errorf("size %s: governor %s: %w", c.Symbol, snap.State, models.ErrGovernorLocked)
	}
	if c.ES95 <= 0 || c.EntryPrice <= 0 {
		return nil, fmt.Errorf("size %s: degenerate candidate es95=%v entry=%v", c.Symbol, c.ES95, c.EntryPrice)
	}

	volScale := c.VolScale
	if volScale == 0 {
		volScale = 1
	}
	volScale = math.Min(1.2, math.Max(0.6, volScale))

	budget := equity * s.cfg.RiskPerTrade * snap.SizeMultiplier * volScale
	size := budget / (c.ES95 * c.EntryPrice)
	if s.cfg.MaxPosition > 0 && size > s.cfg.MaxPosition {
		size = s.cfg.MaxPosition
	}
	size = math.Floor(size*100) / 100 // broker lot step
	if size < s.cfg.MinPosition {
		if s.logger != nil {
			s.logger.Debug("candidate below minimum size",
				logger.String("symbol", c.Symbol),
				logger.Float64("size", size),
				logger.Float64("es95", c.ES95),
			)
		}
		return nil, nil
	}

	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		ttl = s.cfg.ExposureTTL
	}
	if !s.governor.ReserveExposure(c.ID, c.Symbol, size*c.EntryPrice, ttl) {
		if s.logger != nil {
			s.logger.Debug("candidate rejected by exposure cap",
				logger.String("symbol", c.Symbol),
				logger.Float64("notional", size*c.EntryPrice),
			)
		}
		return nil, nil
	}

	return &models.SignalData{
		ID:           c.ID,
		Symbol:       c.Symbol,
		Timeframe:    c.Timeframe,
		Direction:    c.Direction,
		EntryPrice:   c.EntryPrice,
		StopLoss:     c.StopLoss,
		TakeProfit:   c.TakeProfit,
		QStar:        c.QStar,
		Probability:  c.Probability,
		PositionSize: size,
		GeneratedAt:  c.GeneratedAt,
	}, nil
}

var _ domsvc.Sizer = (*ESSizer)(nil)
