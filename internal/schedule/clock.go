// Package schedule provides the pure scheduling math for monitors: a Clock
// abstraction and the next-run calculator with catch-up semantics.
package schedule

import "time"

// Clock provides the current time and can be mocked for deterministic tests.
// All scheduling math in the system flows through a Clock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package. Now always
// returns UTC; the scheduling core never reasons about local time.
type RealClock struct{}

// Now returns the current UTC time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a Clock pinned to a single instant, for tests.
type FixedClock struct {
	Instant time.Time
}

// Now returns the pinned instant.
func (c FixedClock) Now() time.Time {
	return c.Instant
}
