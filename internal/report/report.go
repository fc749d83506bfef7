// Package report renders stored simulation runs as PNG time series and
// distributions for offline inspection.
package report

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/intersection.sim/internal/db"
	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/fsutil"
	"github.com/banshee-data/intersection.sim/internal/security"
)

// ErrNoData is returned when a run has no stored ticks.
var ErrNoData = errors.New("run has no recorded ticks")

// Source is the subset of the run store the report reads.
type Source interface {
	GetRun(ctx context.Context, runID string) (db.Run, error)
	StatTicks(ctx context.Context, runID string) ([]db.StatTick, error)
	TravelTimes(ctx context.Context, runID string) (travel, wait []float64, err error)
}

// Plot size on disk.
var (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

var (
	colorBlue   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	colorOrange = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	colorGreen  = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// Result lists the written files and the trip summaries.
type Result struct {
	Run        db.Run         `json:"run"`
	Files      []string       `json:"files"`
	TravelTime engine.Summary `json:"travel_time"`
	WaitTime   engine.Summary `json:"wait_time"`
}

// Generate writes the plots for one run into outDir on the local disk.
func Generate(ctx context.Context, src Source, runID, outDir string) (Result, error) {
	return GenerateTo(ctx, fsutil.OSFileSystem{}, src, runID, outDir)
}

// GenerateTo writes the plots for one run into outDir on fsys. File names
// carry the run ID prefix so reports for several runs can share a directory.
func GenerateTo(ctx context.Context, fsys fsutil.FileSystem, src Source, runID, outDir string) (Result, error) {
	run, err := src.GetRun(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	ticks, err := src.StatTicks(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if len(ticks) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrNoData, runID)
	}
	travel, wait, err := src.TravelTimes(ctx, runID)
	if err != nil {
		return Result{}, err
	}
	if err := fsys.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	res := Result{Run: run, TravelTime: engine.Summarize(travel), WaitTime: engine.Summarize(wait)}
	prefix := security.SanitizeFilename(shortID(run.RunID))
	save := func(p *plot.Plot, name string) error {
		path := filepath.Join(outDir, prefix+"_"+name)
		if err := writePNG(fsys, p, path); err != nil {
			return fmt.Errorf("save %s: %w", name, err)
		}
		res.Files = append(res.Files, path)
		return nil
	}

	title := fmt.Sprintf("Run %s (%s, seed %d)", shortID(run.RunID), run.Mode, run.Seed)

	p, err := linePlot(title+" - Vehicles", "Vehicles", ticks, []series{
		{"passed", colorBlue, func(t db.StatTick) float64 { return float64(t.TotalPassed) }},
		{"on network", colorOrange, func(t db.StatTick) float64 { return float64(t.CurrentCars) }},
	})
	if err != nil {
		return res, err
	}
	if err := save(p, "vehicles.png"); err != nil {
		return res, err
	}

	p, err = linePlot(title+" - Speed and Wait", "m/s, s", ticks, []series{
		{"average speed (m/s)", colorGreen, func(t db.StatTick) float64 { return t.AverageSpeed }},
		{"average wait (s)", colorOrange, func(t db.StatTick) float64 { return t.AverageWait }},
	})
	if err != nil {
		return res, err
	}
	if err := save(p, "speed_wait.png"); err != nil {
		return res, err
	}

	p, err = linePlot(title+" - Detection Scores", "Score", ticks, []series{
		{"NS", colorBlue, func(t db.StatTick) float64 { return t.ScoreNS }},
		{"WE", colorOrange, func(t db.StatTick) float64 { return t.ScoreWE }},
	})
	if err != nil {
		return res, err
	}
	if err := save(p, "scores.png"); err != nil {
		return res, err
	}

	if len(travel) > 0 {
		p, err := histogram(title+" - Travel Time", "Travel time (s)", travel)
		if err != nil {
			return res, err
		}
		if err := save(p, "travel_time.png"); err != nil {
			return res, err
		}
	}
	return res, nil
}

func writePNG(fsys fsutil.FileSystem, p *plot.Plot, path string) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type series struct {
	name  string
	color color.Color
	value func(db.StatTick) float64
}

func linePlot(title, yLabel string, ticks []db.StatTick, ss []series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Simulated time (s)"
	p.Y.Label.Text = yLabel

	for _, s := range ss {
		pts := make(plotter.XYs, len(ticks))
		for i, t := range ticks {
			pts[i] = plotter.XY{X: t.SimTime, Y: s.value(t)}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", s.name, err)
		}
		line.Color = s.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

func histogram(title, xLabel string, xs []float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Trips"

	bins := max(5, min(40, len(xs)/5))
	h, err := plotter.NewHist(plotter.Values(xs), bins)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	h.FillColor = colorBlue
	p.Add(h)
	return p, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
