package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ActivityIDGenerator generates unique activity IDs.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type ActivityIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 activity IDs.
//
// UUIDv7 embeds a timestamp in the most significant bits, so activity IDs
// sort by creation time in logs and in the page journal.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined activity IDs for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("act-1", "act-2")
//	gen.Generate() // "act-1"
//	gen.Generate() // "act-2"
//	gen.Generate() // panic: all ids exhausted
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined ID.
// Panics if all IDs have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Activity is the bookkeeping for one in-flight fetch or refresh sweep.
//
// The cancellation flag is shared by reference: a fetch captures the
// Activity when it starts and checks Canceled() when its page resolves.
// The pending refresh timer is owned here and released on cancel.
type Activity struct {
	// ID identifies the activity; pages carry it back to the machine.
	ID string

	// Refresh is true for a background refresh sweep.
	Refresh bool

	canceled atomic.Bool

	mu    sync.Mutex
	timer Timer
}

func newActivity(id string, refresh bool) *Activity {
	return &Activity{ID: id, Refresh: refresh}
}

// Canceled reports whether the activity has been cancelled.
// Safe to call from any goroutine.
func (a *Activity) Canceled() bool {
	return a == nil || a.canceled.Load()
}

// cancel sets the flag and releases the pending timer.
// Returns false if the activity was already cancelled.
func (a *Activity) cancel() bool {
	if a == nil {
		return false
	}
	first := a.canceled.CompareAndSwap(false, true)
	a.disarm()
	return first
}

// arm replaces any pending timer with a new one.
func (a *Activity) arm(s Scheduler, d time.Duration, f func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = s.AfterFunc(d, f)
}

// disarm stops the pending timer, if any.
func (a *Activity) disarm() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// TimerArmed reports whether a refresh timer is pending.
func (a *Activity) TimerArmed() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timer != nil
}
