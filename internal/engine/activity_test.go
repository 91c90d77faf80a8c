package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_ValidVersion(t *testing.T) {
	id := UUIDv7Generator{}.Generate()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err, "activity id should be a valid UUID")
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestUUIDv7Generator_Concurrent(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 100

	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate activity id generated")
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixedGenerator_Sequential(t *testing.T) {
	gen := NewFixedGenerator("act-1", "act-2")

	assert.Equal(t, "act-1", gen.Generate())
	assert.Equal(t, "act-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() }, "should panic when all ids exhausted")
}

type countingTimer struct {
	stopped int
}

func (c *countingTimer) Stop() bool {
	c.stopped++
	return c.stopped == 1
}

type recordingScheduler struct {
	timers []*countingTimer
	delays []time.Duration
}

func (r *recordingScheduler) AfterFunc(d time.Duration, _ func()) Timer {
	t := &countingTimer{}
	r.timers = append(r.timers, t)
	r.delays = append(r.delays, d)
	return t
}

func TestActivity_CancelIsIdempotent(t *testing.T) {
	sched := &recordingScheduler{}
	a := newActivity("act-1", false)
	a.arm(sched, time.Second, func() {})
	require.True(t, a.TimerArmed())

	assert.True(t, a.cancel(), "first cancel should report the transition")
	assert.False(t, a.cancel(), "second cancel should be a no-op")
	assert.True(t, a.Canceled())
	assert.False(t, a.TimerArmed())
	assert.Equal(t, 1, sched.timers[0].stopped, "timer stopped exactly once")
}

func TestActivity_ArmReplacesPendingTimer(t *testing.T) {
	sched := &recordingScheduler{}
	a := newActivity("act-1", false)

	a.arm(sched, time.Second, func() {})
	a.arm(sched, 2*time.Second, func() {})

	require.Len(t, sched.timers, 2)
	assert.Equal(t, 1, sched.timers[0].stopped, "previous timer stopped")
	assert.Equal(t, 0, sched.timers[1].stopped)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sched.delays)
}

func TestActivity_NilIsCanceled(t *testing.T) {
	var a *Activity
	assert.True(t, a.Canceled())
	assert.False(t, a.cancel())
	assert.False(t, a.TimerArmed())
}
