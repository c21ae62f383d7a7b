package models

// Requests for the HTTP endpoints. Defined in domain for consistency and reuse.

type SignalsRequest struct {
	Equity float64 `query:"equity" json:"equity" validate:"required,gt=0"`
	Symbol string  `query:"symbol" json:"symbol"`
	Limit  int     `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=50"`
}

type ExecutionSubmitRequest struct {
	Ticket     string  `json:"ticket" validate:"required"`
	SignalID   string  `json:"signal_id"`
	Alpha      string  `json:"alpha" default:"manual"`
	Symbol     string  `json:"symbol" validate:"required"`
	Timeframe  string  `json:"timeframe" default:"M5" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	Direction  string  `json:"direction" validate:"required,oneof=long short"`
	Lots       float64 `json:"lots" validate:"required,gt=0"`
	EntryPrice float64 `json:"entry_price" validate:"required,gt=0"`
	ExitPrice  float64 `json:"exit_price" validate:"required,gt=0"`
	EntryTime  string  `json:"entry_time" validate:"required"`
	ExitTime   string  `json:"exit_time" validate:"required"`
	Profit     string  `json:"profit" validate:"required"`
	Commission string  `json:"commission" default:"0"`
	Swap       string  `json:"swap" default:"0"`
}

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"M5" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	N      int    `query:"n" json:"n" default:"300" validate:"gte=1,lte=5000"`
}

type BacktestSubmitRequest struct {
	Symbol string `json:"symbol" validate:"required"`
	TF     string `json:"tf" default:"M5" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Seed   int64  `json:"seed" default:"1"`
}
