package signal

import (
	"fmt"

	"github.com/banshee-data/intersection.sim/internal/config"
)

// timeEpsilon absorbs float drift when a phase timer is compared against its
// duration.
const timeEpsilon = 1e-9

// State is a read-only view of the signal machine for display and export.
// Fixed-mode fields are zero in adaptive mode and vice versa.
type State struct {
	Mode   string `json:"mode"`
	Colors Colors `json:"-"`

	Phase      int     `json:"phase"`
	PhaseTimer float64 `json:"phase_timer"`

	CurrentPair           Pair    `json:"current_pair"`
	SubPhase              Color   `json:"sub_phase"`
	SubPhaseTimer         float64 `json:"sub_phase_timer"`
	Scores                Scores  `json:"scores"`
	FirstVehicleTriggered bool    `json:"first_vehicle_triggered"`
}

// ControlStrategy is one signal phase state machine.
type ControlStrategy interface {
	// Update advances the machine by dt seconds given current demand.
	Update(dt float64, scores Scores)
	Colors() Colors
	State() State
	// Reset returns the machine to its initial state.
	Reset()
	Mode() string
	// Apply picks up new durations from a settings snapshot without
	// resetting the machine.
	Apply(snap config.Snapshot)
}

// NewStrategy builds the strategy for snap.Mode.
func NewStrategy(snap config.Snapshot) (ControlStrategy, error) {
	switch snap.Mode {
	case config.ModeFixed, "":
		return NewFixedTimer(snap.GreenSeconds, snap.YellowSeconds), nil
	case config.ModeAdaptive:
		return NewAdaptiveDemand(snap.MinGreenSeconds, snap.YellowSeconds), nil
	}
	return nil, fmt.Errorf("unknown signal mode %q", snap.Mode)
}
