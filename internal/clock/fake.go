package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Time only moves
// when Advance is called, and due callbacks fire synchronously on the
// advancing goroutine in deadline order.
type FakeClock struct {
	mu     sync.Mutex
	nowMs  int64
	timers []*fakeTimer
}

type fakeTimer struct {
	clock      *FakeClock
	deadlineMs int64
	f          func()
	stopped    bool
	fired      bool
}

// NewFakeClock returns a FakeClock starting at startMs
func NewFakeClock(startMs int64) *FakeClock {
	return &FakeClock{nowMs: startMs}
}

// NowMs returns the fake current time
func (c *FakeClock) NowMs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowMs
}

// AfterFunc registers f to fire once Advance moves time past d
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{
		clock:      c,
		deadlineMs: c.nowMs + d.Milliseconds(),
		f:          f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and fires every due callback in
// deadline order. Callbacks run without the clock lock held, so they
// may schedule further timers; timers that become due within the same
// advance also fire.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.nowMs + d.Milliseconds()
	c.mu.Unlock()

	for {
		next := c.nextDue(target)
		if next == nil {
			break
		}
		next.f()
	}

	c.mu.Lock()
	c.nowMs = target
	c.mu.Unlock()
}

// nextDue pops the earliest unfired timer with deadline <= target,
// setting the clock to that deadline so callbacks observe their own
// fire time.
func (c *FakeClock) nextDue(target int64) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].deadlineMs < c.timers[j].deadlineMs
	})
	for _, t := range c.timers {
		if t.stopped || t.fired {
			continue
		}
		if t.deadlineMs <= target {
			t.fired = true
			if t.deadlineMs > c.nowMs {
				c.nowMs = t.deadlineMs
			}
			return t
		}
	}
	return nil
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
