package engine

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/detection"
	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/signal"
	"github.com/banshee-data/intersection.sim/internal/version"
)

// Summary describes a sample distribution.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	P85    float64 `json:"p85"`
	Max    float64 `json:"max"`
}

// Summarize computes the distribution summary of xs. Empty input gives the
// zero Summary.
func Summarize(xs []float64) Summary {
	if len(xs) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		std = 0
	}
	return Summary{
		Count:  len(sorted),
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(sorted),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P85:    stat.Quantile(0.85, stat.Empirical, sorted, nil),
		Max:    floats.Max(sorted),
	}
}

// FlowAnalysis summarises completed trips and current speeds.
type FlowAnalysis struct {
	Completed         int             `json:"completed"`
	Stranded          int             `json:"stranded"`
	ThroughputPerHour float64         `json:"throughputPerHour"`
	TravelTime        Summary         `json:"travelTime"`
	WaitTime          Summary         `json:"waitTime"`
	Speed             Summary         `json:"speed"`
	SpeedByRoad       map[int]Summary `json:"speedByRoad"`
}

// Performance reports the cost of the physics steps.
type Performance struct {
	Frames            uint64  `json:"frames"`
	Steps             uint64  `json:"steps"`
	DroppedSteps      uint64  `json:"droppedSteps"`
	AverageStepMicros float64 `json:"averageStepMicros"`
	MaxStepMicros     float64 `json:"maxStepMicros"`
	Warnings          int64   `json:"warnings"`
}

type perfCounters struct {
	steps uint64
	total time.Duration
	max   time.Duration
}

func (p *perfCounters) record(d time.Duration) {
	p.steps++
	p.total += d
	p.max = max(p.max, d)
}

// Export is the serialisable snapshot written by ExportTrafficData.
type Export struct {
	RunID      string                 `json:"runId"`
	Version    string                 `json:"version"`
	ExportedAt time.Time              `json:"exportedAt"`
	SimTime    float64                `json:"simTime"`
	Ticks      uint64                 `json:"ticks"`
	Seed       uint64                 `json:"seed"`
	Config     *config.Settings       `json:"config"`
	Statistics Statistics             `json:"statistics"`
	Traffic    road.TrafficStatistics `json:"traffic"`
	Sensors    []detection.ZoneState  `json:"sensors"`
	Detected   int                    `json:"totalCarsDetected"`
	Lights     map[string]string      `json:"lights"`
	Signal     signal.State           `json:"signal"`
	Turns      road.TurnProbabilities `json:"turnProbabilities"`
	Demand     map[string]float64     `json:"demand"`
	Flow       FlowAnalysis           `json:"flow"`
	Perf       Performance            `json:"performance"`
}

// ExportTrafficData gathers statistics, flow analysis, performance counters
// and the active configuration for offline inspection.
func (s *Simulation) ExportTrafficData() Export {
	simTime := s.steps.SimTime()

	flow := FlowAnalysis{
		Completed:   s.totalPassed,
		Stranded:    s.stranded,
		TravelTime:  Summarize(s.travelTimes),
		WaitTime:    Summarize(s.waitTimes),
		SpeedByRoad: make(map[int]Summary, road.RoadCount),
	}
	if simTime > 0 {
		flow.ThroughputPerHour = float64(s.totalPassed) / simTime * 3600
	}
	var all []float64
	for _, seg := range s.net.Segments() {
		speeds := make([]float64, 0, len(seg.Vehicles))
		for _, v := range seg.Vehicles {
			speeds = append(speeds, v.Speed)
		}
		flow.SpeedByRoad[seg.ID] = Summarize(speeds)
		all = append(all, speeds...)
	}
	flow.Speed = Summarize(all)

	perf := Performance{
		Frames:       s.steps.Frames(),
		Steps:        s.steps.Ticks(),
		DroppedSteps: s.steps.Dropped(),
		Warnings:     monitoring.Warnings(),
	}
	if s.perf.steps > 0 {
		perf.AverageStepMicros = float64(s.perf.total.Microseconds()) / float64(s.perf.steps)
		perf.MaxStepMicros = float64(s.perf.max.Microseconds())
	}

	demand := make(map[string]float64, len(signal.Approaches))
	for a, rate := range s.net.Demand() {
		demand[a.String()] = rate
	}

	return Export{
		RunID:      s.runID.String(),
		Version:    version.Get().String(),
		ExportedAt: s.clock.Now().UTC(),
		SimTime:    simTime,
		Ticks:      s.steps.Ticks(),
		Seed:       s.seed,
		Config:     s.Settings(),
		Statistics: s.Statistics(),
		Traffic:    s.TrafficStatistics(),
		Sensors:    s.SensorData(),
		Detected:   s.TotalCarsDetected(),
		Lights:     s.LightStates(),
		Signal:     s.SignalState(),
		Turns:      s.TurnProbabilities(),
		Demand:     demand,
		Flow:       flow,
		Perf:       perf,
	}
}
