package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	domsvc "github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/service"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/risk"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/scoring"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/pkg/logger"
)

// Gates are the promotion thresholds a run must clear.
type Gates struct {
	MinTrades int
	MinPF     float64
	MaxDD     float64
}

// EngineConfig mirrors the live scanner's entry parameters so a promoted
// run reflects what the scanner would actually trade.
type EngineConfig struct {
	TrainFrac     float64
	CostPerUnit   float64 // round-trip cost as a fraction of entry price
	MaxHoldBars   int
	MinQStar      float64
	StopATRMult   float64
	TargetATRMult float64
	Gates         Gates
}

// no-losing-trades cap, profit factor is otherwise unbounded
const maxProfitFactor = 1000

// Engine runs walk-forward backtests: fit the ensemble on the head of
// the window, then trade the tail bar by bar with the same feature,
// scoring and exit rules the scanner uses.
type Engine struct {
	cfg      EngineConfig
	trainCfg inference.TrainerConfig
	ex       *features.Extractor
	regime   domsvc.RegimeDetector
	logger   *logger.Logger
}

func NewEngine(cfg EngineConfig, trainCfg inference.TrainerConfig, ex *features.Extractor, regime domsvc.RegimeDetector) *Engine {
	if cfg.TrainFrac <= 0 || cfg.TrainFrac >= 1 {
		cfg.TrainFrac = 0.7
	}
	if cfg.MaxHoldBars <= 0 {
		cfg.MaxHoldBars = 48
	}
	return &Engine{cfg: cfg, trainCfg: trainCfg, ex: ex, regime: regime}
}

func (e *Engine) SetLogger(l *logger.Logger) {
	e.logger = l
}

type openPosition struct {
	direction models.Direction
	entryIdx  int
	entryTime time.Time
	entry     float64
	stop      float64
	target    float64
	qstar     float64
}

// Run executes the spec against the provided ascending bar history and
// returns the report. Deterministic for identical bars and seed.
func (e *Engine) Run(ctx context.Context, spec models.BacktestSpec, bars []models.Bar) (*models.BacktestReport, error) {
	trainN := int(float64(len(bars)) * e.cfg.TrainFrac)
	if trainN < features.MinBars+10 || len(bars)-trainN < 20 {
		return nil, fmt.Errorf("backtest %s/%s: %d bars is too short for a %.0f/%.0f split: %w",
			spec.Symbol, spec.Timeframe, len(bars), e.cfg.TrainFrac*100, (1-e.cfg.TrainFrac)*100, models.ErrInsufficientBars)
	}

	trainCfg := e.trainCfg
	if spec.Seed != 0 {
		trainCfg.Seed = spec.Seed
	}
	trainer := inference.NewTrainer(trainCfg, e.ex)
	ens, err := trainer.Train(ctx, bars[:trainN])
	if err != nil {
		return nil, fmt.Errorf("backtest %s/%s: train: %w", spec.Symbol, spec.Timeframe, err)
	}

	clock := NewClock(bars[trainN].Timestamp)
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	var pos *openPosition
	var trades []models.SimTrade
	curve := make([]models.EquityPoint, 0, len(bars)-trainN)

	closeTrade := func(exitIdx int, exitPrice float64, reason string) {
		bar := bars[exitIdx]
		ret := tradeReturn(pos.direction, pos.entry, exitPrice) - e.cfg.CostPerUnit
		equity *= 1 + ret
		trades = append(trades, models.SimTrade{
			Direction:  pos.direction,
			EntryTime:  pos.entryTime,
			ExitTime:   bar.Timestamp,
			EntryPrice: pos.entry,
			ExitPrice:  exitPrice,
			PnL:        ret,
			ExitReason: reason,
			QStar:      pos.qstar,
		})
		pos = nil
	}

	for i := trainN; i < len(bars); i++ {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		bar := bars[i]
		clock.Advance(bar.Timestamp)

		// exits first: a bar can stop out the open position before any
		// new entry is considered
		if pos != nil {
			switch {
			case pos.direction == models.DirectionLong && bar.Low <= pos.stop:
				closeTrade(i, pos.stop, "stop")
			case pos.direction == models.DirectionShort && bar.High >= pos.stop:
				closeTrade(i, pos.stop, "stop")
			case pos.direction == models.DirectionLong && bar.High >= pos.target:
				closeTrade(i, pos.target, "target")
			case pos.direction == models.DirectionShort && bar.Low <= pos.target:
				closeTrade(i, pos.target, "target")
			case i-pos.entryIdx >= e.cfg.MaxHoldBars:
				closeTrade(i, bar.Close, "max_hold")
			}
		}

		window := bars[:i+1]
		fv, ferr := e.ex.Extract(window)
		if ferr != nil {
			continue
		}
		regime, rerr := e.regime.Detect(ctx, spec.Symbol, window)
		if rerr != nil {
			regime = models.Regime{State: "range"}
		}
		proba, agreement := ens.Predict(fv.Values)
		qstar := scoring.QStar(proba, agreement, fv, regime.State)
		dir := models.DirectionLong
		if proba < 0.5 {
			dir = models.DirectionShort
		}

		if pos != nil && qstar >= e.cfg.MinQStar && dir == pos.direction.Opposite() {
			closeTrade(i, bar.Close, "flip")
		}
		if pos == nil && qstar >= e.cfg.MinQStar && fv.ATR > 0 {
			pos = e.enter(i, clock.Now(), bar.Close, dir, fv.ATR, qstar)
		}

		marked := equity
		if pos != nil {
			marked = equity * (1 + tradeReturn(pos.direction, pos.entry, bar.Close))
		}
		curve = append(curve, models.EquityPoint{Time: clock.Now(), Equity: marked})
		if marked > peak {
			peak = marked
		}
		if peak > 0 {
			if dd := (peak - marked) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	if pos != nil {
		closeTrade(len(bars)-1, bars[len(bars)-1].Close, "eod")
	}

	report := e.buildReport(spec, trades, curve, equity, maxDD)
	if e.logger != nil {
		e.logger.Info("backtest run finished",
			logger.String("symbol", spec.Symbol),
			logger.String("timeframe", string(spec.Timeframe)),
			logger.Int("trades", report.Trades),
			logger.Float64("return", report.Return),
			logger.Float64("profit_factor", report.ProfitFactor),
			logger.Bool("promoted", report.Promoted),
		)
	}
	return report, nil
}

func (e *Engine) enter(idx int, at time.Time, close float64, dir models.Direction, atr, qstar float64) *openPosition {
	stop := close - e.cfg.StopATRMult*atr
	target := close + e.cfg.TargetATRMult*atr
	if dir == models.DirectionShort {
		stop = close + e.cfg.StopATRMult*atr
		target = close - e.cfg.TargetATRMult*atr
	}
	return &openPosition{
		direction: dir,
		entryIdx:  idx,
		entryTime: at,
		entry:     close,
		stop:      stop,
		target:    target,
		qstar:     qstar,
	}
}

func (e *Engine) buildReport(spec models.BacktestSpec, trades []models.SimTrade, curve []models.EquityPoint, equity, maxDD float64) *models.BacktestReport {
	var wins int
	var grossWin, grossLoss, sumRet float64
	for _, t := range trades {
		sumRet += t.PnL
		if t.PnL > 0 {
			wins++
			grossWin += t.PnL
		} else {
			grossLoss += -t.PnL
		}
	}

	r := &models.BacktestReport{
		Spec:        spec,
		Trades:      len(trades),
		Return:      equity - 1,
		MaxDrawdown: maxDD,
		EquityCurve: curve,
		TradeLog:    trades,
	}
	if len(trades) > 0 {
		r.WinRate = float64(wins) / float64(len(trades))
		r.Expectancy = sumRet / float64(len(trades))
	}
	switch {
	case grossLoss > 0:
		r.ProfitFactor = grossWin / grossLoss
		if r.ProfitFactor > maxProfitFactor {
			r.ProfitFactor = maxProfitFactor
		}
	case grossWin > 0:
		r.ProfitFactor = maxProfitFactor
	}

	rets := curveReturns(curve)
	if len(rets) >= 30 {
		r.ES95 = risk.ExpectedShortfall(rets)
	}
	r.Sharpe = sharpe(rets, spec.Timeframe.BarsPerYear())
	r.Promoted, r.GateReasons = e.applyGates(r)
	return r
}

func (e *Engine) applyGates(r *models.BacktestReport) (bool, []string) {
	var reasons []string
	if r.Trades < e.cfg.Gates.MinTrades {
		reasons = append(reasons, fmt.Sprintf("trades %d below minimum %d", r.Trades, e.cfg.Gates.MinTrades))
	}
	if r.ProfitFactor < e.cfg.Gates.MinPF {
		reasons = append(reasons, fmt.Sprintf("profit factor %.2f below minimum %.2f", r.ProfitFactor, e.cfg.Gates.MinPF))
	}
	if e.cfg.Gates.MaxDD > 0 && r.MaxDrawdown > e.cfg.Gates.MaxDD {
		reasons = append(reasons, fmt.Sprintf("max drawdown %.2f%% over limit %.2f%%", r.MaxDrawdown*100, e.cfg.Gates.MaxDD*100))
	}
	return len(reasons) == 0, reasons
}

func tradeReturn(dir models.Direction, entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	ret := (exit - entry) / entry
	if dir == models.DirectionShort {
		ret = -ret
	}
	return ret
}

func curveReturns(curve []models.EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, curve[i].Equity/prev-1)
	}
	return out
}

func sharpe(rets []float64, barsPerYear float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	mean, err := stats.Mean(rets)
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(rets)
	if err != nil || sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(barsPerYear)
}
