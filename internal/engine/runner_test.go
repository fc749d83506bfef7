package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ticksOf(r *Runner) uint64 {
	var n uint64
	r.Do(func(s *Simulation) { n = s.Ticks() })
	return n
}

func TestRunnerFramesOnTicker(t *testing.T) {
	sim, clock := newTestSim(t, nil)
	sim.Start()
	r := NewRunner(sim, clock)
	r.Interval = 100 * time.Millisecond

	r.Start()
	defer r.Stop()

	// 100 ms is six steps at 60 Hz; the frame cap runs five.
	clock.Advance(100 * time.Millisecond)
	require.Eventually(t, func() bool { return ticksOf(r) == DefaultMaxSteps },
		time.Second, 5*time.Millisecond)
}

func TestRunnerStopHaltsFrames(t *testing.T) {
	sim, clock := newTestSim(t, nil)
	sim.Start()
	r := NewRunner(sim, clock)

	r.Start()
	r.Start() // second call is a no-op
	assert.Equal(t, 1, clock.Tickers())
	r.Stop()
	r.Stop()
	assert.Zero(t, clock.Tickers())

	clock.Advance(time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ticksOf(r))
}

func TestRunnerRunOnce(t *testing.T) {
	sim, clock := newTestSim(t, nil)
	sim.Start()
	r := NewRunner(sim, clock)
	r.last = clock.Now()

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, 3, r.RunOnce())
	assert.Zero(t, r.RunOnce())
}

func TestRunnerRunReturnsOnCancel(t *testing.T) {
	sim, clock := newTestSim(t, nil)
	r := NewRunner(sim, clock)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
