// Package yaclock provides the seconds-granularity time source the cache
// components stamp entries with.
//
// Cache TTLs are whole seconds, so callers never need more resolution than
// one second. The system clock therefore memoizes the current second together
// with the instant it rolls over; every read still consults the runtime clock
// to compare against that instant, and recomputes the second only once it has
// passed.
//
// For tests, [Manual] is a hand-driven clock that makes TTL and stale-window
// behavior fully deterministic without sleeping.
//
// # Quick start
//
//	clock := yaclock.System()
//	now := clock.Now() // UNIX seconds
//
// # Deterministic tests
//
//	clock := yaclock.NewManual(1000)
//	clock.Advance(3) // three seconds pass instantly
package yaclock

import (
	"sync/atomic"
	"time"
)

// Clock yields the current time as UNIX seconds.
//
// Implementations must be safe for concurrent use.
type Clock interface {
	// Now returns the current UNIX timestamp in whole seconds.
	//
	// Example:
	//
	//	insertedAt := clock.Now()
	Now() int64
}

// systemClock caches the current second so that repeated reads within the
// same wall-clock second cost one runtime clock read and a pair of atomic
// loads.
type systemClock struct {
	cachedSecond atomic.Int64
	// validUntil is the UnixNano deadline after which cachedSecond is stale.
	validUntil atomic.Int64
}

// System returns the process clock with per-second memoization.
//
// Example:
//
//	clock := yaclock.System()
//	fmt.Println(clock.Now())
func System() Clock {
	return &systemClock{}
}

// Now implements [Clock].
func (c *systemClock) Now() int64 {
	nano := time.Now().UnixNano()

	if nano < c.validUntil.Load() {
		return c.cachedSecond.Load()
	}

	second := nano / int64(time.Second)

	c.cachedSecond.Store(second)
	c.validUntil.Store((second + 1) * int64(time.Second))

	return second
}

// Manual is a test clock whose time only moves when told to.
type Manual struct {
	current atomic.Int64
}

// NewManual returns a [Manual] clock starting at the given UNIX second.
//
// Example:
//
//	clock := yaclock.NewManual(42)
func NewManual(start int64) *Manual {
	clock := &Manual{}
	clock.current.Store(start)

	return clock
}

// Now implements [Clock].
func (m *Manual) Now() int64 {
	return m.current.Load()
}

// Set jumps the clock to an absolute UNIX second.
func (m *Manual) Set(second int64) {
	m.current.Store(second)
}

// Advance moves the clock forward by the given number of seconds and returns
// the new time.
//
// Example:
//
//	clock.Advance(3)
func (m *Manual) Advance(seconds int64) int64 {
	return m.current.Add(seconds)
}
