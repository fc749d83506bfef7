package signal

import "github.com/banshee-data/intersection.sim/internal/config"

// FixedClearance is the all-red time between the two green phases.
const FixedClearance = 3.0

// Fixed cycle phase indices.
const (
	PhaseNSGreen = iota
	PhaseNSYellow
	PhaseNSClear
	PhaseWEGreen
	PhaseWEYellow
	PhaseWEClear
	phaseCount
)

// FixedTimerStrategy cycles through six phases on a single timer,
// ignoring demand.
type FixedTimerStrategy struct {
	green, yellow float64

	phase  int
	timer  float64
	colors Colors
}

func NewFixedTimer(green, yellow float64) *FixedTimerStrategy {
	s := &FixedTimerStrategy{green: green, yellow: yellow}
	s.Reset()
	return s
}

func (s *FixedTimerStrategy) Mode() string { return config.ModeFixed }

func (s *FixedTimerStrategy) Reset() {
	s.phase = PhaseNSGreen
	s.timer = 0
	s.colors = phaseColors(s.phase)
}

func (s *FixedTimerStrategy) Apply(snap config.Snapshot) {
	s.green = snap.GreenSeconds
	s.yellow = snap.YellowSeconds
}

func (s *FixedTimerStrategy) duration(phase int) float64 {
	switch phase {
	case PhaseNSGreen, PhaseWEGreen:
		return s.green
	case PhaseNSYellow, PhaseWEYellow:
		return s.yellow
	}
	return FixedClearance
}

func (s *FixedTimerStrategy) Update(dt float64, _ Scores) {
	s.timer += dt
	if s.timer >= s.duration(s.phase)-timeEpsilon {
		s.phase = (s.phase + 1) % phaseCount
		s.timer = 0
		s.colors = phaseColors(s.phase)
	}
}

func (s *FixedTimerStrategy) Colors() Colors { return s.colors }

// Phase returns the current phase index (0..5).
func (s *FixedTimerStrategy) Phase() int { return s.phase }

func (s *FixedTimerStrategy) State() State {
	return State{
		Mode:       s.Mode(),
		Colors:     s.colors,
		Phase:      s.phase,
		PhaseTimer: s.timer,
	}
}

// CycleLength returns the time to return to PhaseNSGreen.
func (s *FixedTimerStrategy) CycleLength() float64 {
	return 2 * (s.green + s.yellow + FixedClearance)
}

func phaseColors(phase int) Colors {
	c := AllRed
	switch phase {
	case PhaseNSGreen:
		c[North], c[South] = Green, Green
	case PhaseNSYellow:
		c[North], c[South] = Yellow, Yellow
	case PhaseWEGreen:
		c[East], c[West] = Green, Green
	case PhaseWEYellow:
		c[East], c[West] = Yellow, Yellow
	}
	return c
}
