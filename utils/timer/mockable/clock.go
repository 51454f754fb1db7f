// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockable

import (
	"sync"
	"time"
)

// Clock wraps wall time so tests can pin or advance it. Unix never returns a
// value lower than one it returned before, even if the wall clock or a
// faked time moves backwards.
// It is safe for concurrent use.
type Clock struct {
	mu    sync.Mutex
	faked bool
	time  time.Time
	last  uint64
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = true
	c.time = t
}

// Advance moves a pinned clock forward by d. An unpinned clock is pinned at
// the current wall time first.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.faked {
		c.faked = true
		c.time = time.Now()
	}
	c.time = c.time.Add(d)
}

// Sync this clock with global time
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = false
}

// Time returns the time on this clock
func (c *Clock) Time() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeLocked()
}

// Unix returns the monotonic unix timestamp of this clock, in seconds.
func (c *Clock) Unix() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := uint64(max(c.timeLocked().Unix(), 0))
	c.last = max(c.last, now)
	return c.last
}

func (c *Clock) timeLocked() time.Time {
	if c.faked {
		return c.time
	}
	return time.Now()
}
