package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionReport is a filled trade reported back by the execution layer.
// Money fields are decimals; float summation of currency drifts.
type ExecutionReport struct {
	Ticket     string          `json:"ticket"`
	SignalID   string          `json:"signal_id"`
	Alpha      string          `json:"alpha"`
	Symbol     string          `json:"symbol"`
	Timeframe  Timeframe       `json:"timeframe"`
	Direction  Direction       `json:"direction"`
	Lots       float64         `json:"lots"`
	EntryPrice float64         `json:"entry_price"`
	ExitPrice  float64         `json:"exit_price"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	Profit     decimal.Decimal `json:"profit"`
	Commission decimal.Decimal `json:"commission"`
	Swap       decimal.Decimal `json:"swap"`
}

// NetProfit returns profit minus commission and swap.
func (e ExecutionReport) NetProfit() decimal.Decimal {
	return e.Profit.Sub(e.Commission).Sub(e.Swap)
}

// Win reports whether the execution closed with a positive net result.
func (e ExecutionReport) Win() bool {
	return e.NetProfit().IsPositive()
}
