package signal

import "github.com/banshee-data/intersection.sim/internal/config"

// Adaptive switching thresholds. Empirical values, kept literal.
const (
	// SwitchRatio is how much the waiting pair must out-score the green pair.
	SwitchRatio = 1.5
	// SwitchFloor is the minimum score the waiting pair needs to force a switch.
	SwitchFloor = 10.0
	// AllRedClearance is the all-red time after every adaptive yellow.
	AllRedClearance = 2.0
)

// AdaptiveDemandStrategy gives green to whichever pair has the most demand.
// It idles all-red until the first vehicle is detected.
type AdaptiveDemandStrategy struct {
	minGreen, yellow float64

	pair      Pair
	sub       Color
	timer     float64
	scores    Scores
	triggered bool
}

func NewAdaptiveDemand(minGreen, yellow float64) *AdaptiveDemandStrategy {
	s := &AdaptiveDemandStrategy{minGreen: minGreen, yellow: yellow}
	s.Reset()
	return s
}

func (s *AdaptiveDemandStrategy) Mode() string { return config.ModeAdaptive }

func (s *AdaptiveDemandStrategy) Reset() {
	s.pair = PairNone
	s.sub = Red
	s.timer = 0
	s.scores = Scores{}
	s.triggered = false
}

func (s *AdaptiveDemandStrategy) Apply(snap config.Snapshot) {
	s.minGreen = snap.MinGreenSeconds
	s.yellow = snap.YellowSeconds
}

func (s *AdaptiveDemandStrategy) Update(dt float64, scores Scores) {
	s.scores = scores

	if s.pair == PairNone {
		if scores.NS > 0 || scores.WE > 0 {
			s.pair = scores.Best(PairNone)
			s.sub = Green
			s.timer = 0
			s.triggered = true
		}
		return
	}

	s.timer += dt
	switch s.sub {
	case Green:
		if s.timer < s.minGreen-timeEpsilon {
			return
		}
		cur := scores.Get(s.pair)
		other := scores.Get(s.pair.Other())
		if other > cur*SwitchRatio && other > SwitchFloor {
			s.sub = Yellow
			s.timer = 0
		}
	case Yellow:
		if s.timer >= s.yellow-timeEpsilon {
			s.sub = Red
			s.timer = 0
		}
	case Red:
		if s.timer >= AllRedClearance-timeEpsilon {
			s.pair = scores.Best(s.pair)
			s.sub = Green
			s.timer = 0
		}
	}
}

func (s *AdaptiveDemandStrategy) Colors() Colors {
	c := AllRed
	for _, a := range s.pair.Approaches() {
		c[a] = s.sub
	}
	return c
}

// CurrentPair returns the pair holding the right of way, PairNone when idle.
func (s *AdaptiveDemandStrategy) CurrentPair() Pair { return s.pair }

func (s *AdaptiveDemandStrategy) State() State {
	return State{
		Mode:                  s.Mode(),
		Colors:                s.Colors(),
		CurrentPair:           s.pair,
		SubPhase:              s.sub,
		SubPhaseTimer:         s.timer,
		Scores:                s.scores,
		FirstVehicleTriggered: s.triggered,
	}
}
