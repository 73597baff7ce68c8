package reconcile

import (
	"sync/atomic"
	"time"
)

// Clock supplies cycle timestamps.
type Clock interface {
	Now() time.Time
}

// MonotonicClock stamps cycles with wall time at millisecond precision that
// never moves backwards, even if the system clock is stepped back.
//
// Thread-safety: MonotonicClock is safe for concurrent use (atomic operations).
type MonotonicClock struct {
	now  func() time.Time
	last atomic.Int64 // unix milliseconds
}

// NewMonotonicClock wraps a time source.
func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	return &MonotonicClock{now: now}
}

// NewSystemClock returns a MonotonicClock over time.Now.
func NewSystemClock() *MonotonicClock {
	return NewMonotonicClock(time.Now)
}

// Now returns max(source time, last returned time), in UTC.
func (c *MonotonicClock) Now() time.Time {
	for {
		ms := c.now().UnixMilli()
		last := c.last.Load()
		if ms <= last {
			return time.UnixMilli(last).UTC()
		}
		if c.last.CompareAndSwap(last, ms) {
			return time.UnixMilli(ms).UTC()
		}
	}
}
