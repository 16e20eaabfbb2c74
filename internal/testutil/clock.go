package testutil

import (
	"sync"
	"time"
)

// Clock is a deterministic wall clock. Every call to Now returns the
// previous reading advanced by a fixed step, so solve timestamps are
// reproducible across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Clock struct {
	mu    sync.Mutex
	start time.Time
	step  time.Duration
	ticks int64
}

// NewClock creates a clock whose first reading is start. A zero step
// freezes the clock.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{start: start.UTC(), step: step}
}

// Now returns the current reading and advances the clock by one step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.at(c.ticks)
	c.ticks++
	return t
}

// Current returns the reading the next call to Now will return.
func (c *Clock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.ticks)
}

// Reset rewinds the clock to its start.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}

func (c *Clock) at(ticks int64) time.Time {
	return c.start.Add(time.Duration(ticks) * c.step)
}
