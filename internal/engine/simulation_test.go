package engine

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/signal"
	"github.com/banshee-data/intersection.sim/internal/timeutil"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestSim(t *testing.T, update *config.Settings) (*Simulation, *timeutil.MockClock) {
	t.Helper()
	settings := &config.Settings{Seed: config.Uint64(42)}
	if update != nil {
		settings = settings.Merge(update)
	}
	clock := timeutil.NewMockClock(epoch)
	sim, err := New(Options{Settings: settings, Clock: clock})
	require.NoError(t, err)
	return sim, clock
}

func stepFor(sim *Simulation, seconds float64) {
	n := int(seconds/sim.Snapshot().Dt + 0.5)
	for i := 0; i < n; i++ {
		sim.Step()
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	_, err := New(Options{Settings: &config.Settings{TurnRate: config.Float64(2)}})
	require.Error(t, err)

	_, err = New(Options{Settings: &config.Settings{Mode: config.String("roundabout")}})
	require.Error(t, err)
}

func TestFrameDoesNothingWhileStopped(t *testing.T) {
	sim, _ := newTestSim(t, nil)
	assert.False(t, sim.Running())
	assert.Zero(t, sim.Frame(100*time.Millisecond))
	assert.Zero(t, sim.Ticks())

	sim.Start()
	assert.Equal(t, DefaultMaxSteps, sim.Frame(100*time.Millisecond))
	assert.InDelta(t, float64(DefaultMaxSteps)*sim.Snapshot().Dt, sim.SimTime(), 1e-9)

	sim.Stop()
	assert.Zero(t, sim.Frame(100*time.Millisecond))
}

func TestApplySettingsTakesEffectAtNextTick(t *testing.T) {
	sim, _ := newTestSim(t, nil)

	require.NoError(t, sim.ApplySettings(&config.Settings{
		Mode:             config.String(config.ModeAdaptive),
		DetectorDistance: config.Float64(40),
	}))
	// Queued but not yet in effect.
	assert.Equal(t, config.ModeFixed, sim.Snapshot().Mode)
	assert.Equal(t, config.ModeAdaptive, sim.Settings().GetMode())

	sim.Step()
	assert.Equal(t, config.ModeAdaptive, sim.Snapshot().Mode)
	assert.Equal(t, config.ModeAdaptive, sim.SignalState().Mode)
	assert.InDelta(t, 40, sim.Snapshot().DetectorDistance, 1e-12)
}

func TestApplySettingsRejectsInvalid(t *testing.T) {
	sim, _ := newTestSim(t, nil)
	err := sim.ApplySettings(&config.Settings{CarSpeed: config.Float64(-1)})
	require.Error(t, err)

	sim.Step()
	assert.InDelta(t, config.DefaultSnapshot().CarSpeed, sim.Snapshot().CarSpeed, 1e-12)
	assert.NoError(t, sim.ApplySettings(nil))
}

func TestSetTurnProbabilities(t *testing.T) {
	sim, _ := newTestSim(t, nil)
	before := sim.TurnProbabilities()

	err := sim.SetTurnProbabilities(0.5, 0.5, 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTurnProbabilities))
	assert.Equal(t, before, sim.TurnProbabilities())

	assert.ErrorIs(t, sim.SetTurnProbabilities(math.NaN(), 0.5, 0.5), ErrInvalidTurnProbabilities)
	assert.Equal(t, before, sim.TurnProbabilities())
	_, err = json.Marshal(sim.ExportTrafficData())
	assert.NoError(t, err)

	require.NoError(t, sim.SetTurnProbabilities(0.2, 0.3, 0.5))
	assert.InDelta(t, 0.5, sim.TurnProbabilities().Left, 1e-12)
}

func TestSetTrafficDemand(t *testing.T) {
	sim, _ := newTestSim(t, nil)
	sim.SetTrafficDemand(map[signal.Approach]float64{signal.North: 900, signal.East: 0})

	demand := sim.TrafficDemand()
	assert.InDelta(t, 900, demand[signal.North], 1e-12)
	assert.Zero(t, demand[signal.East])
}

func TestStatisticsTickOncePerSecond(t *testing.T) {
	sim, _ := newTestSim(t, nil)

	var ticks []StatisticsTick
	unsubscribe := sim.Subscribe(ObserverFuncs{
		StatisticsTick: func(st StatisticsTick) { ticks = append(ticks, st) },
	})
	stepFor(sim, 10)

	require.Len(t, ticks, 10)
	for i, st := range ticks {
		assert.InDelta(t, float64(i+1), st.SimTime, 1e-6)
		assert.Len(t, st.Lights, len(signal.Approaches))
	}

	unsubscribe()
	stepFor(sim, 2)
	assert.Len(t, ticks, 10)
}

func TestVehiclesCompleteRoutes(t *testing.T) {
	sim, _ := newTestSim(t, &config.Settings{CarSpawnRate: config.Float64(12)})

	var done []VehicleCompletion
	sim.Subscribe(ObserverFuncs{
		VehicleCompleted: func(c VehicleCompletion) { done = append(done, c) },
	})
	stepFor(sim, 180)

	require.NotEmpty(t, done)
	stats := sim.Statistics()
	assert.Equal(t, len(done), stats.TotalCarsPassed)
	assert.Equal(t, sim.Network().Count(), stats.CurrentCars)
	for _, c := range done {
		assert.Greater(t, c.TravelTime, 0.0)
		assert.GreaterOrEqual(t, c.WaitTime, 0.0)
		assert.LessOrEqual(t, c.WaitTime, c.TravelTime+1e-9)
		assert.GreaterOrEqual(t, c.CompletedAt, c.SpawnTime)
	}
	assert.GreaterOrEqual(t, stats.AverageWaitTime, 0.0)
}

func TestResetReplaysSeed(t *testing.T) {
	sim, _ := newTestSim(t, nil)
	stepFor(sim, 30)
	first := sim.Vehicles()
	firstRun := sim.RunID()
	require.NotEmpty(t, first)

	sim.Reset()
	assert.Zero(t, sim.SimTime())
	assert.Empty(t, sim.Vehicles())
	assert.Zero(t, sim.Statistics().TotalCarsPassed)
	assert.NotEqual(t, firstRun, sim.RunID())

	stepFor(sim, 30)
	if diff := cmp.Diff(first, sim.Vehicles()); diff != "" {
		t.Errorf("replay differs (-first +second):\n%s", diff)
	}
}

func TestSeedFromClockWhenUnset(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sim, err := New(Options{Clock: clock})
	require.NoError(t, err)
	assert.Equal(t, uint64(epoch.UnixNano()), sim.Seed())
}

func TestExportTrafficData(t *testing.T) {
	sim, _ := newTestSim(t, &config.Settings{CarSpawnRate: config.Float64(12)})
	stepFor(sim, 120)

	exp := sim.ExportTrafficData()
	assert.Equal(t, sim.RunID().String(), exp.RunID)
	assert.Equal(t, uint64(42), exp.Seed)
	assert.Equal(t, epoch, exp.ExportedAt)
	assert.InDelta(t, 120, exp.SimTime, 1e-6)
	assert.Equal(t, exp.Statistics.TotalCarsPassed, exp.Flow.Completed)
	assert.Equal(t, exp.Flow.Completed, exp.Flow.TravelTime.Count)
	assert.Equal(t, exp.Statistics.CurrentCars, exp.Flow.Speed.Count)
	assert.Len(t, exp.Demand, len(signal.Approaches))
	assert.Equal(t, exp.Ticks, exp.Perf.Steps)
	require.NotNil(t, exp.Config)
	assert.Equal(t, config.ModeFixed, exp.Config.GetMode())
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	s := Summarize([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Mean, 1e-12)
	assert.InDelta(t, 1.2910, s.StdDev, 1e-4)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 2.0, s.Median)
	assert.Equal(t, 4.0, s.P85)
	assert.Equal(t, 4.0, s.Max)

	one := Summarize([]float64{7})
	assert.Zero(t, one.StdDev)
	assert.Equal(t, 7.0, one.Median)
}
