package engine

import "sync/atomic"

// Clock hands out State.Seq values. Each Machine owns one, starting at 0,
// and every transition that commits a new State takes the next value.
// Reduce paths that return prev unchanged never advance it.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first Next is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out, 0 before the first Next.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
