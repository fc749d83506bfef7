package db

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/timeutil"
	"github.com/banshee-data/intersection.sim/internal/version"
)

// DefaultFlushInterval is how often buffered rows are written.
const DefaultFlushInterval = 5 * time.Second

// Recorder is an engine.Observer that buffers ticks and completions in
// memory and writes them to the store from its own goroutine. Observer
// callbacks only append under a mutex, so the frame loop never waits on
// sqlite.
type Recorder struct {
	DB       *DB
	Interval time.Duration

	clock timeutil.Clock

	mu          sync.Mutex
	runID       string
	ticks       []StatTick
	completions []Completion

	stopChan chan struct{}
	done     chan struct{}
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder creates a recorder writing to db. A nil clock uses wall time.
func NewRecorder(db *DB, clock timeutil.Clock) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recorder{DB: db, Interval: DefaultFlushInterval, clock: clock}
}

// RunOf describes the simulation's current run for InsertRun.
func RunOf(sim *engine.Simulation, startedAt time.Time) Run {
	cfg, err := json.Marshal(sim.Settings())
	if err != nil {
		cfg = []byte("{}")
	}
	return Run{
		RunID:     sim.RunID().String(),
		Seed:      sim.Seed(),
		Mode:      sim.Snapshot().Mode,
		Config:    string(cfg),
		Version:   version.Get().Version,
		StartedAt: startedAt,
	}
}

// BeginRun flushes anything buffered for the previous run, stores the new
// run row and tags subsequent events with its ID.
func (r *Recorder) BeginRun(ctx context.Context, run Run) error {
	if err := r.Flush(ctx); err != nil {
		monitoring.Warnf("recorder: flush before new run failed: %v", err)
	}
	if err := r.DB.InsertRun(ctx, run); err != nil {
		return err
	}
	r.mu.Lock()
	r.runID = run.RunID
	r.mu.Unlock()
	return nil
}

// OnStatisticsTick buffers one tick.
func (r *Recorder) OnStatisticsTick(t engine.StatisticsTick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runID == "" {
		return
	}
	r.ticks = append(r.ticks, StatTick{
		RunID:        r.runID,
		SimTime:      t.SimTime,
		TotalPassed:  t.Statistics.TotalCarsPassed,
		AverageWait:  t.Statistics.AverageWaitTime,
		CurrentCars:  t.Statistics.CurrentCars,
		AverageSpeed: t.Traffic.AverageSpeed,
		ScoreNS:      t.Scores.NS,
		ScoreWE:      t.Scores.WE,
		Lights:       t.Lights,
	})
}

// OnVehicleCompleted buffers one completed trip.
func (r *Recorder) OnVehicleCompleted(c engine.VehicleCompletion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runID == "" {
		return
	}
	r.completions = append(r.completions, Completion{RunID: r.runID, VehicleCompletion: c})
}

// Pending returns the number of buffered rows.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks) + len(r.completions)
}

// Flush writes every buffered row. Rows that fail to write are dropped and
// the error returned.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	ticks, completions := r.ticks, r.completions
	r.ticks, r.completions = nil, nil
	r.mu.Unlock()

	if err := r.DB.InsertStatTicks(ctx, ticks); err != nil {
		return err
	}
	return r.DB.InsertCompletions(ctx, completions)
}

// Start launches the periodic flush goroutine.
func (r *Recorder) Start() {
	r.mu.Lock()
	if r.stopChan != nil {
		r.mu.Unlock()
		return
	}
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stopChan, r.done
	ticker := r.clock.NewTicker(r.Interval)
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if err := r.Flush(context.Background()); err != nil {
					monitoring.Warnf("recorder: flush failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
	monitoring.Logf("recorder started (flush every %s)", r.Interval)
}

// Stop ends the flush goroutine and writes what is left.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	stop, done := r.stopChan, r.done
	r.stopChan, r.done = nil, nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
	return r.Flush(ctx)
}
