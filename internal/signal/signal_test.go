package signal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/intersection.sim/internal/config"
)

func TestFixedCycleClosure(t *testing.T) {
	tests := []struct {
		name          string
		green, yellow float64
		dt            float64
	}{
		{"defaults at 60 Hz", 10, 3, 1.0 / 60},
		{"short phases at 10 Hz", 4, 2, 0.1},
		{"long green at 50 Hz", 30, 4, 0.02},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewFixedTimer(tt.green, tt.yellow)
			c := NewController(s)
			require.Equal(t, PhaseNSGreen, s.Phase())

			cycle := tt.green + tt.yellow + FixedClearance + tt.green + tt.yellow + FixedClearance
			assert.InDelta(t, cycle, s.CycleLength(), 1e-12)

			steps := int(cycle/tt.dt + 0.5)
			seen := map[int]bool{}
			for i := 0; i < steps; i++ {
				c.Step(tt.dt, Scores{})
				seen[s.Phase()] = true
			}

			assert.Equal(t, PhaseNSGreen, s.Phase())
			assert.Equal(t, Green, c.Color(North))
			assert.Equal(t, Green, c.Color(South))
			assert.Equal(t, Red, c.Color(East))
			assert.Equal(t, Red, c.Color(West))
			assert.Len(t, seen, phaseCount, "every phase visited")
		})
	}
}

func TestFixedPhaseColors(t *testing.T) {
	want := []Colors{
		{North: Green, South: Green, East: Red, West: Red},
		{North: Yellow, South: Yellow, East: Red, West: Red},
		AllRed,
		{North: Red, South: Red, East: Green, West: Green},
		{North: Red, South: Red, East: Yellow, West: Yellow},
		AllRed,
	}
	for phase, w := range want {
		if diff := cmp.Diff(w, phaseColors(phase)); diff != "" {
			t.Errorf("phase %d colors mismatch (-want +got):\n%s", phase, diff)
		}
	}
}

func TestFixedTransitionResetsTimer(t *testing.T) {
	s := NewFixedTimer(1, 1)
	s.Update(0.6, Scores{})
	s.Update(0.6, Scores{})
	assert.Equal(t, PhaseNSYellow, s.Phase())
	assert.Equal(t, 0.0, s.State().PhaseTimer)
}

func TestAdaptiveIdleUntilDemand(t *testing.T) {
	s := NewAdaptiveDemand(5, 3)
	c := NewController(s)

	for i := 0; i < 600; i++ {
		c.Step(1.0/60, Scores{NS: 0, WE: 0})
	}
	st := c.State()
	assert.Equal(t, PairNone, st.CurrentPair)
	assert.False(t, st.FirstVehicleTriggered)
	assert.Equal(t, AllRed, c.Colors())

	tr := c.Step(1.0/60, Scores{NS: 1})
	st = c.State()
	assert.Equal(t, PairNS, st.CurrentPair)
	assert.Equal(t, Green, st.SubPhase)
	assert.True(t, st.FirstVehicleTriggered)
	assert.Equal(t, Green, c.Color(North))
	assert.Equal(t, Green, c.Color(South))
	assert.Equal(t, Red, c.Color(East))
	assert.ElementsMatch(t, []Approach{North, South}, tr.Changed)
	assert.Equal(t, PairNone, tr.Switched, "leaving idle is not a pair switch")
}

func TestAdaptiveSwitchCycle(t *testing.T) {
	const dt = 0.1
	s := NewAdaptiveDemand(5, 3)
	c := NewController(s)
	c.Step(dt, Scores{WE: 2})
	require.Equal(t, PairWE, s.CurrentPair())

	// Heavy NS demand during min green is ignored.
	for i := 0; i < 40; i++ {
		c.Step(dt, Scores{WE: 2, NS: 50})
	}
	assert.Equal(t, Green, s.State().SubPhase)

	// Past min green the switch fires.
	for i := 0; i < 11; i++ {
		c.Step(dt, Scores{WE: 2, NS: 50})
	}
	assert.Equal(t, Yellow, s.State().SubPhase)
	assert.Equal(t, Yellow, c.Color(East))

	for i := 0; i < 30; i++ {
		c.Step(dt, Scores{WE: 2, NS: 50})
	}
	assert.Equal(t, Red, s.State().SubPhase)
	assert.Equal(t, AllRed, c.Colors())

	var switched Pair
	for i := 0; i < 20; i++ {
		if tr := c.Step(dt, Scores{WE: 2, NS: 50}); tr.Switched != PairNone {
			switched = tr.Switched
		}
	}
	assert.Equal(t, PairNS, switched)
	assert.Equal(t, PairNS, s.CurrentPair())
	assert.Equal(t, Green, c.Color(North))
}

func TestAdaptiveSwitchThresholds(t *testing.T) {
	tests := []struct {
		name       string
		scores     Scores
		wantYellow bool
	}{
		{"other below ratio", Scores{NS: 10, WE: 14}, false},
		{"other above ratio but under floor", Scores{NS: 4, WE: 9}, false},
		{"other exactly at floor", Scores{NS: 0, WE: 10}, false},
		{"other above ratio and floor", Scores{NS: 10, WE: 15.5}, true},
		{"current empty, other busy", Scores{NS: 0, WE: 11}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewAdaptiveDemand(0, 3)
			s.Update(0.1, Scores{NS: 1})
			require.Equal(t, PairNS, s.CurrentPair())
			s.Update(0.1, tt.scores)
			assert.Equal(t, tt.wantYellow, s.State().SubPhase == Yellow)
		})
	}
}

func TestAdaptiveReturnsToSamePairOnTie(t *testing.T) {
	s := NewAdaptiveDemand(0, 1)
	s.Update(0.1, Scores{WE: 1})
	s.Update(0.1, Scores{WE: 0, NS: 20})
	require.Equal(t, Yellow, s.State().SubPhase)
	for i := 0; i < 10; i++ {
		s.Update(0.1, Scores{NS: 20})
	}
	require.Equal(t, Red, s.State().SubPhase)
	for i := 0; i < 20; i++ {
		s.Update(0.1, Scores{NS: 5, WE: 5})
	}
	assert.Equal(t, PairWE, s.CurrentPair())
	assert.Equal(t, Green, s.State().SubPhase)
}

func TestControllerApplySwapsStrategy(t *testing.T) {
	snap := config.DefaultSnapshot()
	st, err := NewStrategy(snap)
	require.NoError(t, err)
	c := NewController(st)
	assert.Equal(t, config.ModeFixed, c.Mode())

	snap.GreenSeconds = 20
	require.NoError(t, c.Apply(snap))
	fixed, ok := c.Strategy().(*FixedTimerStrategy)
	require.True(t, ok)
	assert.InDelta(t, 2*(20+3+FixedClearance), fixed.CycleLength(), 1e-9)

	snap.Mode = config.ModeAdaptive
	require.NoError(t, c.Apply(snap))
	assert.Equal(t, config.ModeAdaptive, c.Mode())
	assert.Equal(t, AllRed, c.Colors())

	snap.Mode = "roundabout"
	assert.Error(t, c.Apply(snap))
	assert.Equal(t, config.ModeAdaptive, c.Mode())
}

func TestParseApproach(t *testing.T) {
	for _, a := range Approaches {
		got, err := ParseApproach(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	got, err := ParseApproach(" W ")
	require.NoError(t, err)
	assert.Equal(t, West, got)

	_, err = ParseApproach("up")
	assert.Error(t, err)
}

func TestPairs(t *testing.T) {
	assert.Equal(t, PairNS, PairOf(North))
	assert.Equal(t, PairWE, PairOf(West))
	assert.Equal(t, PairWE, PairNS.Other())
	assert.Equal(t, PairNone, PairNone.Other())
	assert.Equal(t, PairNS, Scores{}.Best(PairNone))
	assert.Equal(t, PairWE, Scores{NS: 1, WE: 1}.Best(PairWE))
}
