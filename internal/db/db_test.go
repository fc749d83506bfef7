package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

var testEpoch = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSim(t *testing.T) *engine.Simulation {
	t.Helper()
	sim, err := engine.New(engine.Options{
		Settings: &config.Settings{Seed: config.Uint64(11), CarSpawnRate: config.Float64(12)},
		Clock:    timeutil.NewMockClock(testEpoch),
	})
	require.NoError(t, err)
	return sim
}

func stepSeconds(sim *engine.Simulation, seconds float64) {
	n := int(seconds/sim.Snapshot().Dt + 0.5)
	for i := 0; i < n; i++ {
		sim.Step()
	}
}

func TestMigrations(t *testing.T) {
	db := setupTestDB(t)

	v, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
	assert.False(t, dirty)

	require.NoError(t, db.CheckSchema())

	require.NoError(t, db.MigrateDown())
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.True(t, errors.Is(db.CheckSchema(), ErrSchemaMismatch))

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='exports'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp(), "second up is a no-op")
	v, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestRunRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.LatestRun(ctx)
	assert.True(t, errors.Is(err, ErrRunNotFound))

	older := Run{RunID: "a", Seed: 1, Mode: "fixed", Config: "{}", Version: "dev", StartedAt: testEpoch}
	newer := Run{RunID: "b", Seed: 1 << 63, Mode: "adaptive", Config: `{"mode":"adaptive"}`, Version: "dev",
		StartedAt: testEpoch.Add(time.Minute)}
	require.NoError(t, db.InsertRun(ctx, older))
	require.NoError(t, db.InsertRun(ctx, newer))
	assert.Error(t, db.InsertRun(ctx, older), "duplicate run id")

	got, err := db.GetRun(ctx, "b")
	require.NoError(t, err)
	if diff := cmp.Diff(newer, got); diff != "" {
		t.Errorf("GetRun mismatch (-want +got):\n%s", diff)
	}

	latest, err := db.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.RunID)

	runs, err := db.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[1].RunID)

	_, err = db.GetRun(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestStatTicksAndCompletions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertRun(ctx, Run{RunID: "r", Mode: "fixed", Config: "{}", StartedAt: testEpoch}))

	ticks := []StatTick{
		{RunID: "r", SimTime: 1, TotalPassed: 0, CurrentCars: 3, AverageSpeed: 11.5,
			Lights: map[string]string{"north": "green", "east": "red"}},
		{RunID: "r", SimTime: 2, TotalPassed: 1, AverageWait: 0.5, CurrentCars: 4, ScoreNS: 2, ScoreWE: 7.5,
			Lights: map[string]string{"north": "yellow", "east": "red"}},
	}
	require.NoError(t, db.InsertStatTicks(ctx, ticks))
	require.NoError(t, db.InsertStatTicks(ctx, nil))

	got, err := db.StatTicks(ctx, "r")
	require.NoError(t, err)
	if diff := cmp.Diff(ticks, got); diff != "" {
		t.Errorf("StatTicks mismatch (-want +got):\n%s", diff)
	}

	cs := []Completion{
		{RunID: "r", VehicleCompletion: engine.VehicleCompletion{VehicleID: 2, Kind: road.Truck, CompletedAt: 30, TravelTime: 25, WaitTime: 4}},
		{RunID: "r", VehicleCompletion: engine.VehicleCompletion{VehicleID: 1, Kind: road.Car, CompletedAt: 20, TravelTime: 18, WaitTime: 0}},
	}
	require.NoError(t, db.InsertCompletions(ctx, cs))
	n, err := db.CompletionCount(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	travel, wait, err := db.TravelTimes(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, []float64{18, 25}, travel)
	assert.Equal(t, []float64{0, 4}, wait)

	// Foreign keys are enforced.
	err = db.InsertStatTicks(ctx, []StatTick{{RunID: "nope", SimTime: 1, Lights: map[string]string{}}})
	assert.Error(t, err)
}

func TestExportRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sim := newTestSim(t)
	require.NoError(t, db.InsertRun(ctx, RunOf(sim, testEpoch)))

	stepSeconds(sim, 60)
	exp := sim.ExportTrafficData()
	require.NoError(t, db.SaveExport(ctx, exp))

	got, err := db.LatestExport(ctx, exp.RunID)
	require.NoError(t, err)
	assert.Equal(t, exp.RunID, got.RunID)
	assert.Equal(t, exp.Flow.Completed, got.Flow.Completed)
	assert.Equal(t, exp.Signal.CurrentPair, got.Signal.CurrentPair)
	assert.Equal(t, exp.Lights, got.Lights)
	assert.True(t, exp.ExportedAt.Equal(got.ExportedAt))

	_, err = db.LatestExport(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestRecorderFlushesObservedEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	sim := newTestSim(t)
	rec := NewRecorder(db, timeutil.NewMockClock(testEpoch))
	sim.Subscribe(rec)

	// Events before BeginRun have no run to belong to.
	stepSeconds(sim, 2)
	assert.Zero(t, rec.Pending())

	run := RunOf(sim, testEpoch)
	require.NoError(t, rec.BeginRun(ctx, run))
	stepSeconds(sim, 120)
	require.NotZero(t, rec.Pending())
	require.NoError(t, rec.Flush(ctx))
	assert.Zero(t, rec.Pending())

	ticks, err := db.StatTicks(ctx, run.RunID)
	require.NoError(t, err)
	assert.Len(t, ticks, 120)
	last := ticks[len(ticks)-1]
	assert.Equal(t, sim.Statistics().TotalCarsPassed, last.TotalPassed)

	n, err := db.CompletionCount(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, sim.Statistics().TotalCarsPassed, n)

	stored, err := db.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), stored.Seed)
	assert.Contains(t, stored.Config, `"seed":11`)
}

func TestRecorderBackgroundFlush(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	clock := timeutil.NewMockClock(testEpoch)
	sim := newTestSim(t)
	rec := NewRecorder(db, clock)
	rec.Interval = time.Second
	sim.Subscribe(rec)
	require.NoError(t, rec.BeginRun(ctx, RunOf(sim, testEpoch)))

	rec.Start()
	stepSeconds(sim, 5)
	require.NotZero(t, rec.Pending())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return rec.Pending() == 0 }, time.Second, 5*time.Millisecond)

	stepSeconds(sim, 3)
	require.NoError(t, rec.Stop(ctx))
	assert.Zero(t, rec.Pending())

	ticks, err := db.StatTicks(ctx, sim.RunID().String())
	require.NoError(t, err)
	assert.Len(t, ticks, 8)
}
