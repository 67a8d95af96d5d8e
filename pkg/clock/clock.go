// Package clock provides the time source used to stamp deltas and to compute
// expiry cutoffs. Timestamps are integer milliseconds since the Unix epoch.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock returns the current time in milliseconds.
type Clock interface {
	Now() int64
}

// System reads the wall clock.
type System struct{}

func (System) Now() int64 {
	return time.Now().UnixMilli()
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	now atomic.Int64
}

// NewManual returns a Manual clock starting at start.
func NewManual(start int64) *Manual {
	m := &Manual{}
	m.now.Store(start)
	return m
}

func (m *Manual) Now() int64 {
	return m.now.Load()
}

// Set moves the clock to t.
func (m *Manual) Set(t int64) {
	m.now.Store(t)
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) int64 {
	return m.now.Add(d.Milliseconds())
}

// Millis converts a duration to the timestamp unit.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}
