package models

import "errors"

var (
	// ErrNotFound signals a missing entity (bar window, backtest run).
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBars signals a window shorter than the longest lookback.
	ErrInsufficientBars = errors.New("insufficient bars for window")
	// ErrGovernorLocked signals that the governor refuses tradable signals.
	ErrGovernorLocked = errors.New("governor is locked")
	// ErrDuplicateTicket signals an execution replay; the first write wins.
	ErrDuplicateTicket = errors.New("duplicate execution ticket")
	// ErrAnomalous signals a window rejected by the anomaly detector.
	ErrAnomalous = errors.New("window flagged anomalous")
)
