// Package dedupe guards room operations against duplicate in-flight
// requests from the same connection. Clients retry aggressively on
// flaky links; without the guard a double-tapped join lands twice.
package dedupe

import (
	"sync"
	"time"

	"github.com/toronlabs/toron_backend/internal/clock"
	"github.com/toronlabs/toron_backend/internal/logging"
)

// DefaultWatchdog is how long an entry may stay in flight before the
// deduper assumes the handler hung and clears it.
const DefaultWatchdog = 30 * time.Second

// Deduper tracks in-flight (connection, operation) pairs
type Deduper struct {
	mu       sync.Mutex
	clock    clock.Clock
	watchdog time.Duration
	inflight map[string]map[string]clock.Timer
}

// New creates a Deduper with the default watchdog
func New(c clock.Clock) *Deduper {
	return NewWithWatchdog(c, DefaultWatchdog)
}

// NewWithWatchdog creates a Deduper with a custom watchdog duration
func NewWithWatchdog(c clock.Clock, watchdog time.Duration) *Deduper {
	return &Deduper{
		clock:    c,
		watchdog: watchdog,
		inflight: make(map[string]map[string]clock.Timer),
	}
}

// Begin marks (connectionID, operation) as in flight. It reports false
// when the same pair is already in flight, in which case the caller
// must reject the request without touching any state.
func (d *Deduper) Begin(connectionID, operation string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ops, ok := d.inflight[connectionID]
	if !ok {
		ops = make(map[string]clock.Timer)
		d.inflight[connectionID] = ops
	}
	if _, busy := ops[operation]; busy {
		return false
	}

	ops[operation] = d.clock.AfterFunc(d.watchdog, func() {
		d.expire(connectionID, operation)
	})
	return true
}

// End clears an in-flight entry once its handler finished
func (d *Deduper) End(connectionID, operation string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remove(connectionID, operation)
}

// Cleanup drops every entry for a connection. Called when the socket
// closes so stale guards never outlive their connection.
func (d *Deduper) Cleanup(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, timer := range d.inflight[connectionID] {
		timer.Stop()
	}
	delete(d.inflight, connectionID)
}

// InFlight reports whether the pair is currently guarded
func (d *Deduper) InFlight(connectionID, operation string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ops, ok := d.inflight[connectionID]
	if !ok {
		return false
	}
	_, busy := ops[operation]
	return busy
}

func (d *Deduper) expire(connectionID, operation string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ops, ok := d.inflight[connectionID]
	if !ok {
		return
	}
	if _, busy := ops[operation]; !busy {
		return
	}
	d.remove(connectionID, operation)
	logging.Warn("Request guard expired", map[string]interface{}{
		"connection_id": connectionID,
		"operation":     operation,
	})
}

func (d *Deduper) remove(connectionID, operation string) {
	ops, ok := d.inflight[connectionID]
	if !ok {
		return
	}
	if timer, busy := ops[operation]; busy {
		timer.Stop()
		delete(ops, operation)
	}
	if len(ops) == 0 {
		delete(d.inflight, connectionID)
	}
}
