package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/intersection.sim/internal/engine"
	"github.com/banshee-data/intersection.sim/internal/httputil"
	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/units"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

func writeHTML(w http.ResponseWriter, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// showVehicleChart renders every posed vehicle as a point in world
// coordinates, coloured by speed.
func (s *Server) showVehicleChart(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var (
		vs      []engine.VehicleState
		simTime float64
		vMax    float64
	)
	s.runner.Do(func(sim *engine.Simulation) {
		vs = sim.Vehicles()
		simTime = sim.SimTime()
		vMax = sim.Snapshot().CarSpeed
	})

	pts := make([]opts.ScatterData, 0, len(vs))
	maxAbs := 0.0
	for _, v := range vs {
		if !v.HasPose {
			continue
		}
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(v.Pose.X), math.Abs(v.Pose.Y)))
		pts = append(pts, opts.ScatterData{
			Value: []interface{}{v.Pose.X, v.Pose.Y, units.ConvertSpeed(v.Speed, u), v.ID},
		})
	}
	pad := math.Max(maxAbs*1.05, 1)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Intersection Vehicles", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Vehicles", Subtitle: fmt.Sprintf("t=%.1fs count=%d speed=%s", simTime, len(pts), u)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(math.Max(units.ConvertSpeed(vMax, u), 1)),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("vehicles", pts, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render vehicle chart: %v", err))
		return
	}
	writeHTML(w, &buf)
}

// showRoadChart renders per-road load as grouped bars.
func (s *Server) showRoadChart(w http.ResponseWriter, r *http.Request) {
	u, err := s.requestUnits(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	var ts road.TrafficStatistics
	s.runner.Do(func(sim *engine.Simulation) { ts = sim.TrafficStatistics() })

	x := make([]string, 0, road.RoadCount)
	count := make([]opts.BarData, 0, road.RoadCount)
	speed := make([]opts.BarData, 0, road.RoadCount)
	density := make([]opts.BarData, 0, road.RoadCount)
	for id := 0; id < road.RoadCount; id++ {
		rs := ts.RoadStats[id]
		x = append(x, road.RoadName(id))
		count = append(count, opts.BarData{Value: rs.Vehicles})
		speed = append(speed, opts.BarData{Value: math.Round(units.ConvertSpeed(rs.AverageSpeed, u)*10) / 10})
		density = append(density, opts.BarData{Value: math.Round(rs.Density*10) / 10})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Road Load", Subtitle: fmt.Sprintf("vehicles=%d speed=%s", ts.TotalVehicles, u)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	label := charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})
	bar.SetXAxis(x).
		AddSeries("vehicles", count, label).
		AddSeries("average speed", speed, label).
		AddSeries("density (veh/km)", density, label)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	writeHTML(w, &buf)
}
