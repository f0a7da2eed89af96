// Package clock abstracts time for the debate engine so that timer
// behaviour can be driven deterministically in tests. All engine math
// works on millisecond readings from a monotonic source.
package clock

import "time"

// Timer is a handle to a scheduled callback
type Timer interface {
	// Stop cancels the callback. It reports whether the call was
	// stopped before firing.
	Stop() bool
}

// Clock provides the current time in epoch milliseconds and deferred
// callbacks
type Clock interface {
	// NowMs returns the current time as epoch milliseconds. Readings
	// are monotonic: they never go backwards.
	NowMs() int64

	// AfterFunc schedules f to run after d on its own goroutine
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock implements Clock on the runtime clock. The epoch offset
// is captured once at construction and subsequent readings advance on
// the monotonic clock, so wall-clock adjustments cannot move time
// backwards mid-match.
type SystemClock struct {
	base   time.Time
	baseMs int64
}

// NewSystemClock returns a Clock backed by the runtime clock
func NewSystemClock() *SystemClock {
	now := time.Now()
	return &SystemClock{base: now, baseMs: now.UnixMilli()}
}

// NowMs returns the current epoch milliseconds
func (c *SystemClock) NowMs() int64 {
	return c.baseMs + time.Since(c.base).Milliseconds()
}

// AfterFunc schedules f after d using a runtime timer
func (c *SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{t: time.AfterFunc(d, f)}
}

type systemTimer struct {
	t *time.Timer
}

func (s systemTimer) Stop() bool {
	return s.t.Stop()
}
