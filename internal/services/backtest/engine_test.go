package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/domain/models"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/features"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/inference"
	"github.com/MrDecryptDecipher/VPropTrader-sub001/internal/services/scoring"
)

// simBars builds a deterministic uptrend with a pullback every fifth
// bar so both stops and targets get hit during a run.
func simBars(n int) []models.Bar {
	t0 := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		step := 0.05
		if i%5 == 4 {
			step = -0.08
		}
		price += step
		bars[i] = models.Bar{
			Symbol:    "EURUSD",
			Timeframe: models.TFM5,
			Timestamp: t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 0.1,
			Low:       math.Min(open, price) - 0.1,
			Close:     price,
			Volume:    150,
		}
	}
	return bars
}

func testEngineConfig() EngineConfig {
	return EngineConfig{
		TrainFrac:     0.7,
		CostPerUnit:   0.0001,
		MaxHoldBars:   10,
		MinQStar:      0,
		StopATRMult:   1.0,
		TargetATRMult: 2.0,
		Gates:         Gates{MinTrades: 1, MinPF: 0, MaxDD: 0},
	}
}

func testTrainerConfig() inference.TrainerConfig {
	return inference.TrainerConfig{
		LearningRate:   0.05,
		Epochs:         40,
		BatchSize:      16,
		BoostRounds:    10,
		BoostShrinkage: 0.3,
		LogitWeight:    1,
		BoostWeight:    1,
		PriorWeight:    1,
		Seed:           7,
	}
}

func newTestEngine(cfg EngineConfig) *Engine {
	return NewEngine(cfg, testTrainerConfig(), features.NewExtractor(), scoring.NewSlopeRegimeDetector())
}

func TestRunTooShortForSplit(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	spec := models.BacktestSpec{Symbol: "EURUSD", Timeframe: models.TFM5, Seed: 1}

	_, err := e.Run(context.Background(), spec, simBars(60))

	assert.ErrorIs(t, err, models.ErrInsufficientBars)
}

func TestRunTrendingSeries(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	spec := models.BacktestSpec{Symbol: "EURUSD", Timeframe: models.TFM5, Seed: 1}
	bars := simBars(260)

	report, err := e.Run(context.Background(), spec, bars)

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, spec, report.Spec)
	assert.GreaterOrEqual(t, report.Trades, 1)
	assert.Len(t, report.TradeLog, report.Trades)
	assert.Len(t, report.EquityCurve, len(bars)-int(float64(len(bars))*0.7))

	valid := map[string]bool{"stop": true, "target": true, "flip": true, "max_hold": true, "eod": true}
	compounded := 1.0
	for _, tr := range report.TradeLog {
		assert.True(t, valid[tr.ExitReason], "unexpected exit reason %q", tr.ExitReason)
		assert.False(t, tr.ExitTime.Before(tr.EntryTime))
		assert.False(t, math.IsNaN(tr.PnL))
		compounded *= 1 + tr.PnL
	}
	assert.InDelta(t, compounded-1, report.Return, 1e-9)

	assert.GreaterOrEqual(t, report.WinRate, 0.0)
	assert.LessOrEqual(t, report.WinRate, 1.0)
	assert.GreaterOrEqual(t, report.MaxDrawdown, 0.0)

	for i := 1; i < len(report.EquityCurve); i++ {
		assert.False(t, report.EquityCurve[i].Time.Before(report.EquityCurve[i-1].Time))
	}
}

func TestRunDeterministicForSeed(t *testing.T) {
	spec := models.BacktestSpec{Symbol: "EURUSD", Timeframe: models.TFM5, Seed: 42}
	bars := simBars(260)

	r1, err := newTestEngine(testEngineConfig()).Run(context.Background(), spec, bars)
	require.NoError(t, err)
	r2, err := newTestEngine(testEngineConfig()).Run(context.Background(), spec, bars)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
}

func TestRunCanceledContext(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	spec := models.BacktestSpec{Symbol: "EURUSD", Timeframe: models.TFM5, Seed: 1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, spec, simBars(260))

	assert.ErrorIs(t, err, context.Canceled)
}

func simTrade(pnl float64) models.SimTrade {
	return models.SimTrade{Direction: models.DirectionLong, PnL: pnl, ExitReason: "target"}
}

func TestBuildReportStats(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	spec := models.BacktestSpec{Symbol: "EURUSD", Timeframe: models.TFM5}
	trades := []models.SimTrade{simTrade(0.02), simTrade(0.02), simTrade(0.02), simTrade(-0.01)}

	r := e.buildReport(spec, trades, nil, 1.05, 0.04)

	assert.Equal(t, 4, r.Trades)
	assert.InDelta(t, 0.75, r.WinRate, 1e-9)
	assert.InDelta(t, 6.0, r.ProfitFactor, 1e-9)
	assert.InDelta(t, 0.0125, r.Expectancy, 1e-9)
	assert.InDelta(t, 0.05, r.Return, 1e-9)
	assert.True(t, r.Promoted)
	assert.Empty(t, r.GateReasons)
}

func TestBuildReportProfitFactorCap(t *testing.T) {
	e := newTestEngine(testEngineConfig())
	trades := []models.SimTrade{simTrade(0.02), simTrade(0.03)}

	r := e.buildReport(models.BacktestSpec{Timeframe: models.TFM5}, trades, nil, 1.05, 0)

	assert.Equal(t, float64(maxProfitFactor), r.ProfitFactor)
}

func TestGateRejections(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Gates = Gates{MinTrades: 5, MinPF: 1.5, MaxDD: 0.2}
	e := newTestEngine(cfg)
	trades := []models.SimTrade{simTrade(0.01), simTrade(-0.02)}

	r := e.buildReport(models.BacktestSpec{Timeframe: models.TFM5}, trades, nil, 0.99, 0.3)

	assert.False(t, r.Promoted)
	require.Len(t, r.GateReasons, 3)
	assert.Contains(t, r.GateReasons[0], "trades 2 below minimum 5")
	assert.Contains(t, r.GateReasons[1], "profit factor")
	assert.Contains(t, r.GateReasons[2], "max drawdown")
}

func TestTradeReturn(t *testing.T) {
	assert.InDelta(t, 0.1, tradeReturn(models.DirectionLong, 100, 110), 1e-12)
	assert.InDelta(t, -0.1, tradeReturn(models.DirectionShort, 100, 110), 1e-12)
	assert.InDelta(t, 0.05, tradeReturn(models.DirectionShort, 100, 95), 1e-12)
	assert.Zero(t, tradeReturn(models.DirectionLong, 0, 110))
}

func TestCurveReturns(t *testing.T) {
	ts := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	curve := []models.EquityPoint{
		{Time: ts, Equity: 1.0},
		{Time: ts.Add(5 * time.Minute), Equity: 1.1},
		{Time: ts.Add(10 * time.Minute), Equity: 0.99},
	}

	rets := curveReturns(curve)

	require.Len(t, rets, 2)
	assert.InDelta(t, 0.1, rets[0], 1e-9)
	assert.InDelta(t, -0.1, rets[1], 1e-9)

	assert.Nil(t, curveReturns(curve[:1]))
	assert.Equal(t, []float64{0}, curveReturns([]models.EquityPoint{{Equity: 0}, {Equity: 5}}))
}

func TestSharpe(t *testing.T) {
	flat := []float64{0.01, 0.01, 0.01, 0.01}
	assert.Zero(t, sharpe(flat, models.TFM5.BarsPerYear()))

	up := []float64{0.01, 0.02, 0.015, 0.012, 0.018}
	assert.Greater(t, sharpe(up, models.TFM5.BarsPerYear()), 0.0)

	assert.Zero(t, sharpe([]float64{0.01}, models.TFM5.BarsPerYear()))
}

func TestClockAdvance(t *testing.T) {
	start := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	c := NewClock(start)

	c.Advance(start.Add(5 * time.Minute))
	assert.Equal(t, start.Add(5*time.Minute), c.Now())

	// simulated time never runs backwards
	c.Advance(start)
	assert.Equal(t, start.Add(5*time.Minute), c.Now())
}
