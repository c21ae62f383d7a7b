package models

import "time"

// GovernorState is the risk governor's current stance.
type GovernorState string

const (
	// GovernorActive allows full-size trading.
	GovernorActive GovernorState = "active"
	// GovernorSoftLimit halves position sizes after the soft daily-loss
	// threshold is crossed.
	GovernorSoftLimit GovernorState = "soft_limit"
	// GovernorSuspended blocks new tradable signals until the next UTC day.
	GovernorSuspended GovernorState = "suspended"
	// GovernorLockdown is the sticky max-drawdown breach state. Only an
	// operator reset clears it.
	GovernorLockdown GovernorState = "lockdown"
)

// Tradable reports whether new signals may be served in this state.
func (s GovernorState) Tradable() bool {
	return s == GovernorActive || s == GovernorSoftLimit
}

// SizeMultiplier returns the governor's size scaling for the state.
func (s GovernorState) SizeMultiplier() float64 {
	switch s {
	case GovernorActive:
		return 1.0
	case GovernorSoftLimit:
		return 0.5
	default:
		return 0
	}
}

// RiskLimits are the prop-firm style constraints the governor enforces,
// expressed as fractions of starting equity (daily) and peak equity
// (drawdown).
type RiskLimits struct {
	DailyLossLimit float64 `json:"daily_loss_limit"`
	SoftLimitFrac  float64 `json:"soft_limit_frac"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	ExposureCap    float64 `json:"exposure_cap"`
}

// RiskSnapshot is the governor's externally visible state.
type RiskSnapshot struct {
	State          GovernorState `json:"state"`
	Equity         float64       `json:"equity"`
	PeakEquity     float64       `json:"peak_equity"`
	DailyPnL       float64       `json:"daily_pnl"`
	DailyLossUsed  float64       `json:"daily_loss_used"`
	Drawdown       float64       `json:"drawdown"`
	OpenExposure   float64       `json:"open_exposure"`
	SizeMultiplier float64       `json:"size_multiplier"`
	Day            string        `json:"day"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// GovernorTransition is a recorded state change for the compliance log.
type GovernorTransition struct {
	From   GovernorState `json:"from"`
	To     GovernorState `json:"to"`
	Reason string        `json:"reason"`
	At     time.Time     `json:"at"`
}
