// Package testutil provides deterministic stand-ins for the engine's
// injected capabilities.
package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/listsync/internal/engine"
)

// FakeScheduler is an engine.Scheduler driven by explicit Advance calls.
//
// Time starts at zero and only moves when Advance is called. Callbacks run
// synchronously inside Advance, in due-time order, ties broken by
// scheduling order.
//
// Thread-safety: all methods are safe for concurrent use; callbacks run
// without the lock held so they may schedule again.
type FakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *FakeScheduler
	due     time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewFakeScheduler creates a scheduler at time zero.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// AfterFunc implements engine.Scheduler.
func (s *FakeScheduler) AfterFunc(d time.Duration, f func()) engine.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, due: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Stop implements engine.Timer.
func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d and fires every timer that became due.
// Returns the number of callbacks run.
func (s *FakeScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	s.now += d
	now := s.now
	s.mu.Unlock()

	fired := 0
	for {
		t := s.nextDue(now)
		if t == nil {
			return fired
		}
		t.f()
		fired++
	}
}

// nextDue marks and returns the earliest pending timer due at or before now.
func (s *FakeScheduler) nextDue(now time.Duration) *fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*fakeTimer
	live := s.timers[:0]
	for _, t := range s.timers {
		if t.stopped || t.fired {
			continue
		}
		live = append(live, t)
		if t.due <= now {
			due = append(due, t)
		}
	}
	s.timers = live
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	due[0].fired = true
	return due[0]
}

// Pending returns the number of timers neither stopped nor fired.
func (s *FakeScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Now returns the fake elapsed time.
func (s *FakeScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
