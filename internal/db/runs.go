package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/intersection.sim/internal/engine"
)

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one simulation run from reset to reset.
type Run struct {
	RunID     string    `json:"run_id"`
	Seed      uint64    `json:"seed"`
	Mode      string    `json:"mode"`
	Config    string    `json:"config"` // settings JSON
	Version   string    `json:"version"`
	StartedAt time.Time `json:"started_at"`
}

// StatTick is one stored per-second statistics sample.
type StatTick struct {
	RunID        string            `json:"run_id"`
	SimTime      float64           `json:"sim_time"`
	TotalPassed  int               `json:"total_passed"`
	AverageWait  float64           `json:"avg_wait"`
	CurrentCars  int               `json:"current_cars"`
	AverageSpeed float64           `json:"avg_speed"`
	ScoreNS      float64           `json:"score_ns"`
	ScoreWE      float64           `json:"score_we"`
	Lights       map[string]string `json:"lights"`
}

// Completion is one stored completed trip.
type Completion struct {
	RunID string `json:"run_id"`
	engine.VehicleCompletion
}

// InsertRun records the start of a run.
func (db *DB) InsertRun(ctx context.Context, r Run) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, seed, mode, config_json, version, started_ns)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, int64(r.Seed), r.Mode, r.Config, r.Version, r.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r       Run
		seed    int64
		started int64
	)
	if err := row.Scan(&r.RunID, &seed, &r.Mode, &r.Config, &r.Version, &started); err != nil {
		return Run{}, err
	}
	r.Seed = uint64(seed)
	r.StartedAt = time.Unix(0, started).UTC()
	return r, nil
}

// GetRun returns one run by ID.
func (db *DB) GetRun(ctx context.Context, runID string) (Run, error) {
	row := db.QueryRowContext(ctx,
		`SELECT run_id, seed, mode, config_json, version, started_ns FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// ListRuns returns every run, newest first.
func (db *DB) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, seed, mode, config_json, version, started_ns FROM runs ORDER BY started_ns DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently started run.
func (db *DB) LatestRun(ctx context.Context) (Run, error) {
	row := db.QueryRowContext(ctx,
		`SELECT run_id, seed, mode, config_json, version, started_ns FROM runs ORDER BY started_ns DESC LIMIT 1`)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// InsertStatTicks writes a batch of ticks in one transaction. Ticks already
// stored for the same run and time are replaced.
func (db *DB) InsertStatTicks(ctx context.Context, ticks []StatTick) error {
	if len(ticks) == 0 {
		return nil
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO stat_ticks
			 (run_id, sim_time, total_passed, avg_wait, current_cars, avg_speed, score_ns, score_we, lights_json)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, t := range ticks {
			lights, err := json.Marshal(t.Lights)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, t.RunID, t.SimTime, t.TotalPassed, t.AverageWait,
				t.CurrentCars, t.AverageSpeed, t.ScoreNS, t.ScoreWE, string(lights)); err != nil {
				return fmt.Errorf("failed to insert tick %.1fs: %w", t.SimTime, err)
			}
		}
		return nil
	})
}

// InsertCompletions writes a batch of completed trips in one transaction.
func (db *DB) InsertCompletions(ctx context.Context, cs []Completion) error {
	if len(cs) == 0 {
		return nil
	}
	return db.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO completions
			 (run_id, vehicle_id, kind, origin_road, exit_road, spawn_time, completed_at, travel_time, wait_time)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range cs {
			if _, err := stmt.ExecContext(ctx, c.RunID, int64(c.VehicleID), c.Kind.String(), c.OriginRoad,
				c.ExitRoad, c.SpawnTime, c.CompletedAt, c.TravelTime, c.WaitTime); err != nil {
				return fmt.Errorf("failed to insert completion %d: %w", c.VehicleID, err)
			}
		}
		return nil
	})
}

// StatTicks returns a run's ticks in time order.
func (db *DB) StatTicks(ctx context.Context, runID string) ([]StatTick, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, sim_time, total_passed, avg_wait, current_cars, avg_speed, score_ns, score_we, lights_json
		 FROM stat_ticks WHERE run_id = ? ORDER BY sim_time`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var out []StatTick
	for rows.Next() {
		var (
			t      StatTick
			lights string
		)
		if err := rows.Scan(&t.RunID, &t.SimTime, &t.TotalPassed, &t.AverageWait, &t.CurrentCars,
			&t.AverageSpeed, &t.ScoreNS, &t.ScoreWE, &lights); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(lights), &t.Lights); err != nil {
			return nil, fmt.Errorf("bad lights_json at %.1fs: %w", t.SimTime, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TravelTimes returns the travel and wait times of a run's completed trips
// in completion order.
func (db *DB) TravelTimes(ctx context.Context, runID string) (travel, wait []float64, err error) {
	rows, err := db.QueryContext(ctx,
		`SELECT travel_time, wait_time FROM completions WHERE run_id = ? ORDER BY completed_at, vehicle_id`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tt, wt float64
		if err := rows.Scan(&tt, &wt); err != nil {
			return nil, nil, err
		}
		travel = append(travel, tt)
		wait = append(wait, wt)
	}
	return travel, wait, rows.Err()
}

// CompletionCount returns how many trips a run has stored.
func (db *DB) CompletionCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM completions WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// SaveExport stores an export payload against its run.
func (db *DB) SaveExport(ctx context.Context, exp engine.Export) error {
	payload, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO exports (run_id, sim_time, exported_ns, payload_json) VALUES (?, ?, ?, ?)`,
		exp.RunID, exp.SimTime, exp.ExportedAt.UnixNano(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save export: %w", err)
	}
	return nil
}

// LatestExport returns the newest export stored for a run.
func (db *DB) LatestExport(ctx context.Context, runID string) (engine.Export, error) {
	var payload string
	err := db.QueryRowContext(ctx,
		`SELECT payload_json FROM exports WHERE run_id = ? ORDER BY exported_ns DESC, export_id DESC LIMIT 1`,
		runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Export{}, fmt.Errorf("%w: no export for %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return engine.Export{}, err
	}
	var exp engine.Export
	if err := json.Unmarshal([]byte(payload), &exp); err != nil {
		return engine.Export{}, fmt.Errorf("bad export payload: %w", err)
	}
	return exp, nil
}

func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
