package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPnL is one day of realized results.
type DailyPnL struct {
	Day    string          `json:"day"`
	PnL    decimal.Decimal `json:"pnl"`
	Trades int             `json:"trades"`
}

// OverviewReport summarizes account performance from execution history.
type OverviewReport struct {
	Equity       float64         `json:"equity"`
	DailyPnL     decimal.Decimal `json:"daily_pnl"`
	TotalPnL     decimal.Decimal `json:"total_pnl"`
	Trades       int             `json:"trades"`
	WinRate      float64         `json:"win_rate"`
	ProfitFactor float64         `json:"profit_factor"`
	Expectancy   float64         `json:"expectancy"`
	ByDay        []DailyPnL      `json:"by_day"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// ComplianceReport exposes governor state against the configured limits.
type ComplianceReport struct {
	Snapshot        RiskSnapshot         `json:"snapshot"`
	Limits          RiskLimits           `json:"limits"`
	DailyLossUsage  float64              `json:"daily_loss_usage"`
	DrawdownUsage   float64              `json:"drawdown_usage"`
	ExposureUsage   float64              `json:"exposure_usage"`
	ViolationsToday []GovernorTransition `json:"violations_today"`
	GeneratedAt     time.Time            `json:"generated_at"`
}

// AlphaPerformance aggregates executions per strategy label.
type AlphaPerformance struct {
	Alpha        string          `json:"alpha"`
	Trades       int             `json:"trades"`
	WinRate      float64         `json:"win_rate"`
	PnL          decimal.Decimal `json:"pnl"`
	AvgQStar     float64         `json:"avg_qstar"`
	LastTradeAt  time.Time       `json:"last_trade_at"`
	ProfitFactor float64         `json:"profit_factor"`
}

// AlphaReport ranks alphas by realized performance.
type AlphaReport struct {
	Alphas      []AlphaPerformance `json:"alphas"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// SymbolRisk is the per-symbol risk slice for the risk view.
type SymbolRisk struct {
	Symbol      string  `json:"symbol"`
	ES95        float64 `json:"es95"`
	RealizedVol float64 `json:"realized_vol"`
	Regime      string  `json:"regime"`
	VolScale    float64 `json:"vol_scale"`
	Exposure    float64 `json:"exposure"`
}

// RiskReport is the per-symbol risk breakdown plus portfolio numbers.
type RiskReport struct {
	Symbols      []SymbolRisk `json:"symbols"`
	TotalES95    float64      `json:"total_es95"`
	ExposureUsed float64      `json:"exposure_used"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// AnalyticsBundle is the consolidated view assembled by the parallel
// aggregator. Sections that failed carry their error; the rest stay usable.
type AnalyticsBundle struct {
	Overview   *OverviewReport   `json:"overview,omitempty"`
	Compliance *ComplianceReport `json:"compliance,omitempty"`
	Alphas     *AlphaReport      `json:"alphas,omitempty"`
	Risk       *RiskReport       `json:"risk,omitempty"`
	Errors     map[string]string `json:"errors,omitempty"`
}
