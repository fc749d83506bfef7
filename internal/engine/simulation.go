package engine

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/detection"
	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/signal"
	"github.com/banshee-data/intersection.sim/internal/timeutil"
)

// ErrInvalidTurnProbabilities is returned by SetTurnProbabilities.
var ErrInvalidTurnProbabilities = road.ErrInvalidTurnProbabilities

// maxHistory bounds the per-vehicle samples kept for the flow analysis.
const maxHistory = 50000

// Statistics is the headline summary shown to the user.
type Statistics struct {
	TotalCarsPassed int     `json:"totalCarsPassed"`
	AverageWaitTime float64 `json:"averageWaitTime"` // s
	CurrentCars     int     `json:"currentCars"`
}

// VehicleState is a read-only view of one vehicle for rendering.
type VehicleState struct {
	ID      uint64    `json:"id"`
	Kind    road.Kind `json:"kind"`
	Road    int       `json:"road"`
	Lane    int       `json:"lane"`
	U       float64   `json:"u"`
	Speed   float64   `json:"speed"`
	Acc     float64   `json:"acc"`
	Route   []int     `json:"route"`
	Pose    road.Pose `json:"pose"`
	HasPose bool      `json:"hasPose"`
}

// Options configures a new Simulation. Zero values pick defaults.
type Options struct {
	Settings *config.Settings
	// Rand overrides the generator built from the settings seed.
	Rand  *rand.Rand
	Clock timeutil.Clock
}

// Simulation owns one network, one signal controller and one detection
// aggregator and advances them together in fixed steps. It is not safe for
// concurrent use; see Runner.
type Simulation struct {
	settings *config.Settings
	pending  *config.Settings
	snap     config.Snapshot

	rng   *rand.Rand
	seed  uint64
	clock timeutil.Clock

	net     *road.Network
	signals *signal.Controller
	detect  *detection.Aggregator
	steps   *StepClock

	running   bool
	observers []observerEntry
	nextObs   int

	runID          uuid.UUID
	totalPassed    int
	totalWait      float64
	stranded       int
	travelTimes    []float64
	waitTimes      []float64
	lastStatSecond int64
	perf           perfCounters
}

type observerEntry struct {
	id int
	o  Observer
}

// New validates the settings and builds a stopped simulation.
func New(opts Options) (*Simulation, error) {
	settings := config.DefaultSettings()
	if opts.Settings != nil {
		if err := opts.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("invalid settings: %w", err)
		}
		settings = settings.Merge(opts.Settings)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	snap := settings.Snapshot()

	strategy, err := signal.NewStrategy(snap)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		settings: settings,
		snap:     snap,
		clock:    clock,
		net:      road.NewNetwork(snap),
		signals:  signal.NewController(strategy),
		detect:   detection.NewAggregator(snap.DetectorDistance),
		steps:    NewStepClock(snap.Dt),
		runID:    uuid.New(),
	}
	s.rng = opts.Rand
	if s.rng == nil {
		s.seed = snap.Seed
		if s.seed == 0 {
			s.seed = uint64(clock.Now().UnixNano())
		}
		s.rng = newRand(s.seed)
	}
	return s, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Start resumes scheduling. Accumulated state is kept.
func (s *Simulation) Start() { s.running = true }

// Stop pauses scheduling. The next frame simply runs no steps.
func (s *Simulation) Stop() { s.running = false }

func (s *Simulation) Running() bool { return s.running }

// Reset clears time, vehicles, signal and detection state and starts a new
// run. A configured seed is replayed so runs are reproducible.
func (s *Simulation) Reset() {
	s.steps.Reset()
	s.net.Reset()
	s.signals.Reset()
	s.detect.Reset()
	s.totalPassed = 0
	s.totalWait = 0
	s.stranded = 0
	s.travelTimes = nil
	s.waitTimes = nil
	s.lastStatSecond = 0
	s.perf = perfCounters{}
	s.runID = uuid.New()
	if s.snap.Seed != 0 {
		s.seed = s.snap.Seed
		s.rng = newRand(s.seed)
	}
	monitoring.Logf("simulation reset, run %s", s.runID)
}

// Frame feeds one frame of wall time into the step clock and runs the
// resulting physics steps. It does nothing while stopped.
func (s *Simulation) Frame(elapsed time.Duration) int {
	if !s.running {
		return 0
	}
	return s.steps.Advance(elapsed.Seconds(), s.step)
}

// Step runs exactly one physics step regardless of the running flag.
func (s *Simulation) Step() {
	s.step()
	s.steps.tick()
}

func (s *Simulation) step() {
	start := s.clock.Now()
	s.applyPending()

	dt := s.steps.Dt
	now := s.steps.SimTime()
	end := now + dt
	colors := s.signals.Colors()

	res := s.net.Step(road.StepContext{Dt: dt, Now: now, Rng: s.rng, Colors: colors})

	s.detect.Update(s.net, colors, end)
	tr := s.signals.Step(dt, s.detect.Scores())
	s.detect.OnColorChange(tr.Changed)
	if tr.Switched != signal.PairNone {
		s.detect.ResetPair(tr.Switched)
	}

	s.stranded += len(res.Stranded)
	for _, v := range res.Completed {
		s.complete(v, end)
	}

	s.perf.record(s.clock.Since(start))

	if sec := int64(math.Floor(end + 1e-9)); sec > s.lastStatSecond {
		s.lastStatSecond = sec
		s.emitStatistics(end)
	}
}

func (s *Simulation) complete(v *road.Vehicle, at float64) {
	s.totalPassed++
	s.totalWait += v.WaitTime
	travel := at - v.SpawnTime
	s.travelTimes = appendBounded(s.travelTimes, travel)
	s.waitTimes = appendBounded(s.waitTimes, v.WaitTime)

	c := VehicleCompletion{
		VehicleID:   v.ID,
		Kind:        v.Kind,
		OriginRoad:  v.OriginRoad,
		ExitRoad:    v.Road,
		SpawnTime:   v.SpawnTime,
		CompletedAt: at,
		TravelTime:  travel,
		WaitTime:    v.WaitTime,
	}
	for _, e := range s.observers {
		e.o.OnVehicleCompleted(c)
	}
}

func appendBounded(xs []float64, x float64) []float64 {
	xs = append(xs, x)
	if len(xs) > maxHistory {
		xs = xs[len(xs)-maxHistory:]
	}
	return xs
}

func (s *Simulation) emitStatistics(at float64) {
	if len(s.observers) == 0 {
		return
	}
	t := StatisticsTick{
		SimTime:    at,
		Statistics: s.Statistics(),
		Traffic:    s.TrafficStatistics(),
		Sensors:    s.SensorData(),
		Lights:     s.LightStates(),
		Signal:     s.signals.State(),
		Scores:     s.detect.Scores(),
	}
	for _, e := range s.observers {
		e.o.OnStatisticsTick(t)
	}
}

// applyPending swaps in settings queued by ApplySettings. Only derived state
// whose inputs changed is rebuilt.
func (s *Simulation) applyPending() {
	if s.pending == nil {
		return
	}
	settings := s.pending
	s.pending = nil
	old, next := s.snap, settings.Snapshot()

	if next.CarSpeed != old.CarSpeed || next.TruckFraction != old.TruckFraction {
		s.net.SetVehicleParams(next.CarSpeed, next.TruckFraction)
	}
	if next.SpawnRatePerHour != old.SpawnRatePerHour {
		for _, a := range signal.Approaches {
			s.net.SetDemand(a, next.SpawnRatePerHour)
		}
	}
	if next.TurnRate != old.TurnRate {
		if err := s.net.SetTurnProbabilities(road.TurnProbabilitiesFromRate(next.TurnRate)); err != nil {
			monitoring.Warnf("turn rate %.3f not applied: %v", next.TurnRate, err)
		}
	}
	if err := s.signals.Apply(next); err != nil {
		monitoring.Warnf("signal settings not applied: %v", err)
		next.Mode = old.Mode
	}
	if next.DetectorDistance != old.DetectorDistance {
		s.detect.SetDistance(next.DetectorDistance)
	}
	s.steps.SetDt(next.Dt)

	s.settings = settings
	s.snap = next
	monitoring.Logf("settings applied at t=%.2fs (mode %s)", s.steps.SimTime(), next.Mode)
}

// ApplySettings validates a partial settings update and queues it for the
// next tick boundary.
func (s *Simulation) ApplySettings(update *config.Settings) error {
	if update == nil {
		return nil
	}
	if err := update.Validate(); err != nil {
		monitoring.Warnf("rejected settings: %v", err)
		return fmt.Errorf("invalid settings: %w", err)
	}
	s.pending = s.Settings().Merge(update)
	return nil
}

// Settings returns the settings in effect after any queued update.
func (s *Simulation) Settings() *config.Settings {
	if s.pending != nil {
		return s.pending.Merge(nil)
	}
	return s.settings.Merge(nil)
}

// Snapshot returns the settings snapshot used by the current tick.
func (s *Simulation) Snapshot() config.Snapshot { return s.snap }

// SetTrafficDemand sets per-approach arrival rates in vehicles per hour.
func (s *Simulation) SetTrafficDemand(demand map[signal.Approach]float64) {
	for a, rate := range demand {
		if !a.Valid() {
			monitoring.Warnf("unknown approach %d in demand update", int(a))
		}
		s.net.SetDemand(a, rate)
	}
}

// TrafficDemand returns the per-approach arrival rates.
func (s *Simulation) TrafficDemand() map[signal.Approach]float64 { return s.net.Demand() }

// SetTurnProbabilities replaces the route split. The three shares must sum
// to 1; otherwise the previous split is kept and the error wraps
// ErrInvalidTurnProbabilities.
func (s *Simulation) SetTurnProbabilities(straight, right, left float64) error {
	return s.net.SetTurnProbabilities(road.TurnProbabilities{Straight: straight, Right: right, Left: left})
}

func (s *Simulation) TurnProbabilities() road.TurnProbabilities { return s.net.TurnProbabilities() }

// Subscribe registers o for engine events and returns a function that
// removes it.
func (s *Simulation) Subscribe(o Observer) (unsubscribe func()) {
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observerEntry{id: id, o: o})
	return func() {
		s.observers = lo.Reject(s.observers, func(e observerEntry, _ int) bool { return e.id == id })
	}
}

// Statistics returns the headline summary.
func (s *Simulation) Statistics() Statistics {
	st := Statistics{TotalCarsPassed: s.totalPassed, CurrentCars: s.net.Count()}
	if s.totalPassed > 0 {
		st.AverageWaitTime = s.totalWait / float64(s.totalPassed)
	}
	return st
}

func (s *Simulation) TrafficStatistics() road.TrafficStatistics { return s.net.Statistics() }

func (s *Simulation) SensorData() []detection.ZoneState { return s.detect.SensorData() }

// Sensor returns one approach's detection zone.
func (s *Simulation) Sensor(a signal.Approach) detection.ZoneState { return s.detect.Zone(a) }

func (s *Simulation) TotalCarsDetected() int { return s.detect.TotalCarsDetected() }

// LightStates returns the color of each approach keyed by approach name.
func (s *Simulation) LightStates() map[string]string { return s.signals.Colors().Map() }

// SignalState returns the full signal machine view.
func (s *Simulation) SignalState() signal.State { return s.signals.State() }

// Vehicles returns a render view of every vehicle.
func (s *Simulation) Vehicles() []VehicleState {
	var out []VehicleState
	for _, seg := range s.net.Segments() {
		for _, v := range seg.Vehicles {
			p, ok := seg.Pose(v)
			out = append(out, VehicleState{
				ID: v.ID, Kind: v.Kind, Road: v.Road, Lane: v.Lane,
				U: v.U, Speed: v.Speed, Acc: v.Acc,
				Route:   append([]int(nil), v.Route...),
				Pose:    p,
				HasPose: ok,
			})
		}
	}
	return out
}

func (s *Simulation) SimTime() float64 { return s.steps.SimTime() }

func (s *Simulation) Ticks() uint64 { return s.steps.Ticks() }

// Alpha is the render interpolation fraction left over from the last frame.
func (s *Simulation) Alpha() float64 { return s.steps.Alpha() }

func (s *Simulation) RunID() uuid.UUID { return s.runID }

// Seed returns the seed of the internal generator, 0 when one was injected.
func (s *Simulation) Seed() uint64 { return s.seed }

// Network exposes the road network for inspection in tests and tools.
func (s *Simulation) Network() *road.Network { return s.net }
