package physics

import (
	"math"
	"math/rand/v2"

	"github.com/samber/lo"
)

// Numerical constants shared by the driving laws. Not user-tunable.
const (
	// FreeGap is the nominal gap used when there is no leader.
	FreeGap = 1e4
	// MinGap is the floor applied to degenerate (zero or negative) gaps.
	MinGap = 0.01

	// idmDelta is the free-road acceleration exponent.
	idmDelta = 4

	// Driver variance bounds and the per-call perturbation step.
	DriverFactorMin  = 0.85
	DriverFactorMax  = 1.15
	driverNoiseRange = 0.005
)

// IDM holds the Intelligent Driver Model parameters for one vehicle class.
type IDM struct {
	V0   float64 // desired speed (m/s)
	T    float64 // safe time headway (s)
	S0   float64 // minimum gap (m)
	A    float64 // maximum acceleration (m/s²)
	B    float64 // comfortable deceleration (m/s², positive)
	BMax float64 // maximum braking (m/s², positive)
}

// DesiredSpeed returns the effective desired speed for a driver factor.
func (m IDM) DesiredSpeed(driverFactor float64) float64 {
	if driverFactor <= 0 {
		driverFactor = 1
	}
	return m.V0 * driverFactor
}

// FreeTerm is the free-road part of the IDM law. Below the desired speed it is
// the usual power law; above it a linear decay keeps deceleration gentle for
// vehicles entering faster than they want to go.
func (m IDM) FreeTerm(v, driverFactor float64) float64 {
	v0 := m.DesiredSpeed(driverFactor)
	if v0 <= 0 {
		return -m.BMax
	}
	if v < v0 {
		return m.A * (1 - math.Pow(v/v0, idmDelta))
	}
	return m.A * (1 - v/v0)
}

// DesiredGap returns s* for own speed v and leader speed vl.
func (m IDM) DesiredGap(v, vl float64) float64 {
	return m.S0 + math.Max(0, v*m.T+v*(v-vl)/(2*math.Sqrt(m.A*m.B)))
}

// Accel returns the IDM acceleration for gap s (leader rear minus own front),
// own speed v and leader speed vl. The gap is clamped to MinGap before use and
// the result never drops below -BMax.
func (m IDM) Accel(s, v, vl, driverFactor float64) float64 {
	s = math.Max(s, MinGap)
	free := m.FreeTerm(v, driverFactor)
	sStar := m.DesiredGap(v, vl)
	interaction := -m.A * math.Pow(sStar/math.Max(s, m.S0), 2)
	return math.Max(free+interaction, -m.BMax)
}

// FreeAccel is Accel with no leader in range.
func (m IDM) FreeAccel(v, driverFactor float64) float64 {
	return m.Accel(FreeGap, v, v, driverFactor)
}

// StopAccel returns the acceleration needed to stop behind a stationary
// obstacle (a red stop line) dist metres ahead.
func (m IDM) StopAccel(dist, v, driverFactor float64) float64 {
	return m.Accel(dist, v, 0, driverFactor)
}

// CanStopComfortably reports whether a vehicle at speed v can stop within dist
// metres without exceeding the comfortable deceleration.
func (m IDM) CanStopComfortably(dist, v float64) bool {
	if dist <= 0 {
		return false
	}
	return v*v/(2*m.B) <= dist
}

// PerturbDriver nudges a driver factor by a small uniform step and keeps it
// inside [DriverFactorMin, DriverFactorMax]. This is the only source of
// intra-driver variability.
func PerturbDriver(factor float64, rng *rand.Rand) float64 {
	if rng == nil {
		return lo.Clamp(factor, DriverFactorMin, DriverFactorMax)
	}
	factor += (rng.Float64()*2 - 1) * driverNoiseRange
	return lo.Clamp(factor, DriverFactorMin, DriverFactorMax)
}

// CarIDM returns the passenger car parameter set for desired speed v0.
func CarIDM(v0 float64) IDM {
	return IDM{V0: v0, T: 1.5, S0: 2, A: 1.5, B: 2, BMax: 9}
}

// TruckIDM returns the heavy vehicle parameter set for a car desired speed v0.
func TruckIDM(v0 float64) IDM {
	return IDM{V0: 0.8 * v0, T: 1.8, S0: 2.5, A: 0.8, B: 1.5, BMax: 7}
}
