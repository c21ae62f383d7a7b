package models

import "time"

// Direction of a trade candidate.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// SignalData is the wire format served to the execution layer. The EA
// polls /api/signals with its current equity and receives fully sized
// entries; it never sizes positions itself.
type SignalData struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Timeframe    Timeframe `json:"timeframe"`
	Direction    Direction `json:"direction"`
	EntryPrice   float64   `json:"entry_price"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	QStar        float64   `json:"qstar"`
	Probability  float64   `json:"probability"`
	PositionSize float64   `json:"position_size"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// AlphaCandidate is a scanner hit before risk sizing. Candidates live in
// the signal book until they expire or are served.
type AlphaCandidate struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	Direction   Direction `json:"direction"`
	Alpha       string    `json:"alpha"`
	EntryPrice  float64   `json:"entry_price"`
	StopLoss    float64   `json:"stop_loss"`
	TakeProfit  float64   `json:"take_profit"`
	Probability float64   `json:"probability"`
	QStar       float64   `json:"qstar"`
	ES95        float64   `json:"es95"`
	VolScale    float64   `json:"vol_scale"`
	Regime      string    `json:"regime"`
	Tradable    bool      `json:"tradable"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the candidate is past its expiry at now.
func (c AlphaCandidate) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// SignalEvent is the persisted audit record for an emitted candidate.
type SignalEvent struct {
	Candidate AlphaCandidate `json:"candidate"`
	EmittedAt time.Time      `json:"emitted_at"`
}
