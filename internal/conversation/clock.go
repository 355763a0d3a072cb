// ABOUTME: Strictly increasing timestamp source for message writes
// ABOUTME: Two calls never return the same instant, even when the wall clock stalls or steps back

package conversation

import (
	"sync"
	"time"
)

type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	if now == nil {
		now = time.Now
	}
	return &monotonicClock{now: now}
}

// Next returns the current time, bumped one nanosecond past the previous
// result when the underlying clock has not advanced.
func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Round(0) drops the monotonic reading so stored and returned values compare equal
	t := c.now().Round(0).UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
