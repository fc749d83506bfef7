package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepClockRunsWholeSteps(t *testing.T) {
	c := NewStepClock(0.1)
	calls := 0
	n := c.Advance(0.35, func() { calls++ })

	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)
	assert.InDelta(t, 0.3, c.SimTime(), 1e-9)
	assert.InDelta(t, 0.5, c.Alpha(), 1e-6)

	// The leftover fraction carries into the next frame.
	n = c.Advance(0.05, func() { calls++ })
	assert.Equal(t, 1, n)
	assert.InDelta(t, 0, c.Alpha(), 1e-6)
	assert.Equal(t, uint64(4), c.Ticks())
	assert.Equal(t, uint64(2), c.Frames())
}

func TestStepClockCapsLongFrames(t *testing.T) {
	c := NewStepClock(1.0 / 60)
	n := c.Advance(2.0, func() {})

	// 2 s is clamped to 0.25 s = 15 steps, of which 5 run.
	assert.Equal(t, DefaultMaxSteps, n)
	assert.Equal(t, uint64(10), c.Dropped())
	assert.Less(t, c.Alpha(), 1.0)
	assert.InDelta(t, 5.0/60, c.SimTime(), 1e-9)
}

func TestStepClockIgnoresBadFrames(t *testing.T) {
	c := NewStepClock(0.1)
	for _, elapsed := range []float64{0, -1} {
		assert.Zero(t, c.Advance(elapsed, func() { t.Fatal("step called") }))
	}
	assert.Zero(t, c.Ticks())
}

func TestStepClockSetDtKeepsSimTime(t *testing.T) {
	c := NewStepClock(0.1)
	c.Advance(0.25, func() {})
	before := c.SimTime()

	c.SetDt(0.05)
	assert.InDelta(t, before, c.SimTime(), 1e-12)
	assert.Zero(t, c.Alpha())

	c.Advance(0.1, func() {})
	assert.InDelta(t, before+0.1, c.SimTime(), 1e-9)
	assert.Equal(t, uint64(4), c.Ticks())

	c.Reset()
	assert.Zero(t, c.SimTime())
	assert.Zero(t, c.Ticks())
	assert.Zero(t, c.Frames())
}
