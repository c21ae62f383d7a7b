package models

import "time"

// BacktestStatus is the lifecycle of an asynchronous run.
type BacktestStatus string

const (
	BacktestPending   BacktestStatus = "pending"
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestFailed    BacktestStatus = "failed"
)

// BacktestSpec is what a run executes against.
type BacktestSpec struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Seed      int64     `json:"seed"`
}

// SimTrade is one simulated fill in a backtest.
type SimTrade struct {
	Direction  Direction `json:"direction"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	ExitReason string    `json:"exit_reason"` // "stop", "target", "flip", "max_hold", "eod"
	QStar      float64   `json:"qstar"`
}

// EquityPoint is one sample of the simulated equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// BacktestReport is the walk-forward result with promotion gates applied.
type BacktestReport struct {
	Spec         BacktestSpec  `json:"spec"`
	Trades       int           `json:"trades"`
	WinRate      float64       `json:"win_rate"`
	ProfitFactor float64       `json:"profit_factor"`
	Expectancy   float64       `json:"expectancy"`
	Return       float64       `json:"return"`
	MaxDrawdown  float64       `json:"max_drawdown"`
	ES95         float64       `json:"es95"`
	Sharpe       float64       `json:"sharpe"`
	Promoted     bool          `json:"promoted"`
	GateReasons  []string      `json:"gate_reasons,omitempty"`
	EquityCurve  []EquityPoint `json:"equity_curve,omitempty"`
	TradeLog     []SimTrade    `json:"trade_log,omitempty"`
}

// BacktestRun is the queued state of an asynchronous backtest.
type BacktestRun struct {
	ID          string          `json:"id"`
	Spec        BacktestSpec    `json:"spec"`
	Status      BacktestStatus  `json:"status"`
	Error       string          `json:"error,omitempty"`
	Report      *BacktestReport `json:"report,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinishedAt  time.Time       `json:"finished_at,omitempty"`
}
