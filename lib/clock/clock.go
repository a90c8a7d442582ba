// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source used by the frame bridge's rate limiter,
// the viewer write deadlines and the periodic stats logger. Production
// code uses Real(); tests use Fake() and move time explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. If
	// d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker firing every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C (capacity 1; a slow reader
// misses ticks rather than queueing them).
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. C is not closed.
func (t *Ticker) Stop() { t.stop() }

// Since returns the time elapsed since t according to c.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
