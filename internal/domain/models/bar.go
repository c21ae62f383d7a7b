package models

import "time"

// Bar represents one OHLCV record for a symbol at a timeframe.
// Synthetic bars are gap fillers and carry IsSynthetic=true until a real
// bar for the same slot replaces them.
type Bar struct {
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	IsSynthetic bool      `json:"is_synthetic"`
}

// Range returns the high-low span of the bar.
func (b Bar) Range() float64 { return b.High - b.Low }

// Tick is a single trade print from the market stream, aggregated into
// M1 bars by the realtime pipeline.
type Tick struct {
	Symbol    string    `json:"s"`
	Price     float64   `json:"p"`
	Volume    float64   `json:"v"`
	Timestamp time.Time `json:"t"`
}
