package engine

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/timeutil"
)

// DefaultFrameInterval is the wall-clock period between frames (~60 Hz).
const DefaultFrameInterval = 16 * time.Millisecond

// Runner drives a Simulation from a ticker and serialises every other access
// to it. HTTP handlers and the recorder go through Do.
type Runner struct {
	Interval time.Duration

	mu    sync.Mutex
	sim   *Simulation
	clock timeutil.Clock
	last  time.Time

	stopChan chan struct{}
	done     chan struct{}
}

// NewRunner wraps sim. A nil clock uses the wall clock.
func NewRunner(sim *Simulation, clock timeutil.Clock) *Runner {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{Interval: DefaultFrameInterval, sim: sim, clock: clock}
}

// Start launches the frame loop in a goroutine. Calling Start on a running
// Runner is a no-op.
func (r *Runner) Start() {
	r.mu.Lock()
	if r.stopChan != nil {
		r.mu.Unlock()
		return
	}
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	r.last = r.clock.Now()
	ticker := r.clock.NewTicker(r.Interval)
	stop, done := r.stopChan, r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C():
				r.frame(now)
			case <-stop:
				return
			}
		}
	}()
	monitoring.Logf("frame loop started (interval %s)", r.Interval)
}

// Stop ends the frame loop and waits for it to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	stop, done := r.stopChan, r.done
	r.stopChan, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	monitoring.Logf("frame loop stopped")
}

// Run starts the loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.Start()
	<-ctx.Done()
	r.Stop()
	return ctx.Err()
}

func (r *Runner) frame(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	elapsed := now.Sub(r.last)
	r.last = now
	return r.sim.Frame(elapsed)
}

// RunOnce feeds the wall time since the previous frame into the simulation.
func (r *Runner) RunOnce() int {
	return r.frame(r.clock.Now())
}

// Do runs fn with exclusive access to the simulation.
func (r *Runner) Do(fn func(*Simulation)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.sim)
}
