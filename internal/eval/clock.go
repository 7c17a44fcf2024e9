package eval

import "sync/atomic"

// Clock is the logical round counter.
//
// Current is the last committed round. A round in flight runs as
// Current()+1 and only advances the clock when it commits, so an aborted
// round leaves no gap.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// Only the goroutine holding the engine's round lock advances it.
type Clock struct {
	round atomic.Int64
}

// NewClock creates a clock at round 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose last committed round is start. Used to
// continue numbering after replaying a journal.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.round.Store(start)
	return c
}

// Pending returns the number the next round will run as.
func (c *Clock) Pending() int64 {
	return c.round.Load() + 1
}

// Advance marks the pending round committed and returns its number.
func (c *Clock) Advance() int64 {
	return c.round.Add(1)
}

// Current returns the last committed round.
func (c *Clock) Current() int64 {
	return c.round.Load()
}
