package engine

import "time"

// Timer is a handle on a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing.
	// Returns false if it already fired or was already stopped.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
//
// The machine never reads the wall clock; refresh timers go through a
// Scheduler so tests can drive time explicitly (see testutil.FakeScheduler).
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the wall clock with time.AfterFunc.
//
// Callbacks run on their own goroutine; the Driver only uses them to
// enqueue an action, never to touch state directly.
type RealScheduler struct{}

// AfterFunc implements Scheduler.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
