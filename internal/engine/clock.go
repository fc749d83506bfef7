package engine

import "math"

// Frame limits for the fixed step accumulator.
const (
	// DefaultMaxFrame caps how much wall time one frame may feed in (s).
	DefaultMaxFrame = 0.25
	// DefaultMaxSteps caps the physics steps run per frame.
	DefaultMaxSteps = 5

	accumulatorEpsilon = 1e-12
)

// StepClock turns variable wall-clock frames into whole physics steps.
// Simulated time is kept as a step count so it only ever advances by dt.
type StepClock struct {
	Dt       float64
	MaxFrame float64
	MaxSteps int

	accumulator float64
	base        float64 // simulated time before the last dt change
	ticks       uint64  // steps since the last dt change
	total       uint64
	dropped     uint64
	frames      uint64
}

// NewStepClock returns a clock with the default frame limits.
func NewStepClock(dt float64) *StepClock {
	return &StepClock{Dt: dt, MaxFrame: DefaultMaxFrame, MaxSteps: DefaultMaxSteps}
}

// Advance feeds elapsed wall seconds into the accumulator and calls step
// once per whole dt, at most MaxSteps times. Whole steps left over when the
// cap is hit are discarded and counted as dropped; the fraction stays for
// Alpha. It returns the number of steps run.
func (c *StepClock) Advance(elapsed float64, step func()) int {
	c.frames++
	if elapsed <= 0 || math.IsNaN(elapsed) || c.Dt <= 0 {
		return 0
	}
	c.accumulator += min(elapsed, c.MaxFrame)

	n := 0
	for c.accumulator+accumulatorEpsilon >= c.Dt && n < c.MaxSteps {
		step()
		c.accumulator = max(0, c.accumulator-c.Dt)
		c.tick()
		n++
	}
	if c.accumulator+accumulatorEpsilon >= c.Dt {
		excess := math.Floor((c.accumulator + accumulatorEpsilon) / c.Dt)
		c.dropped += uint64(excess)
		c.accumulator = max(0, c.accumulator-excess*c.Dt)
	}
	return n
}

func (c *StepClock) tick() {
	c.ticks++
	c.total++
}

// Alpha is the leftover fraction of a step, for render interpolation.
func (c *StepClock) Alpha() float64 {
	if c.Dt <= 0 {
		return 0
	}
	return c.accumulator / c.Dt
}

// SimTime returns the simulated seconds elapsed.
func (c *StepClock) SimTime() float64 {
	return c.base + float64(c.ticks)*c.Dt
}

// Ticks returns the total number of steps run.
func (c *StepClock) Ticks() uint64 { return c.total }

// Dropped returns how many whole steps were discarded by the frame cap.
func (c *StepClock) Dropped() uint64 { return c.dropped }

// Frames returns how many frames were fed in.
func (c *StepClock) Frames() uint64 { return c.frames }

// SetDt changes the step length without disturbing simulated time so far.
func (c *StepClock) SetDt(dt float64) {
	if dt == c.Dt {
		return
	}
	c.base = c.SimTime()
	c.ticks = 0
	c.Dt = dt
	c.accumulator = 0
}

// Reset zeroes time, counters and the accumulator.
func (c *StepClock) Reset() {
	c.accumulator = 0
	c.base = 0
	c.ticks = 0
	c.total = 0
	c.dropped = 0
	c.frames = 0
}
