package backtest

import "time"

// Clock is the simulation time source. The engine advances it to each
// bar's timestamp so trades and equity points carry simulated time, not
// wall time.
type Clock struct {
	current time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{current: start}
}

func (c *Clock) Now() time.Time {
	return c.current
}

func (c *Clock) Advance(to time.Time) {
	if to.After(c.current) {
		c.current = to
	}
}
