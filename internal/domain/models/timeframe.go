package models

import (
	"fmt"
	"time"
)

// Timeframe represents bar resolution buckets.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TFM1:  time.Minute,
	TFM5:  5 * time.Minute,
	TFM15: 15 * time.Minute,
	TFM30: 30 * time.Minute,
	TFH1:  time.Hour,
	TFH4:  4 * time.Hour,
	TFD1:  24 * time.Hour,
}

// ParseTimeframe converts a raw string into a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// DefaultTimeframe returns the default timeframe.
func DefaultTimeframe() Timeframe { return TFM5 }

// NormalizeTimeframe converts a raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

func (tf Timeframe) String() string { return string(tf) }

// Duration returns the bar interval for the timeframe.
func (tf Timeframe) Duration() time.Duration {
	if d, ok := timeframeDurations[tf]; ok {
		return d
	}
	return time.Minute
}

// BarsPerYear returns the annualization factor for volatility scaling.
// Assumes a 24x5 market week for intraday frames and 252 sessions for daily.
func (tf Timeframe) BarsPerYear() float64 {
	switch tf {
	case TFM1:
		return 252 * 24 * 60
	case TFM5:
		return 252 * 24 * 12
	case TFM15:
		return 252 * 24 * 4
	case TFM30:
		return 252 * 24 * 2
	case TFH1:
		return 252 * 24
	case TFH4:
		return 252 * 6
	case TFD1:
		return 252
	default:
		return 252 * 24 * 12
	}
}

// Truncate aligns t down to the start of the bar containing it.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	if tf == TFD1 {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t.UTC().Truncate(tf.Duration())
}
