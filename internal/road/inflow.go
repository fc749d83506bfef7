package road

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Inflow limits.
const (
	// SpawnClearance is the stretch at the segment start that must be free of
	// vehicle rears before a new vehicle is placed in a lane.
	SpawnClearance = 12.0
	// MaxPending caps the fractional spawn counter so a blocked entry does
	// not release a burst once it clears.
	MaxPending = 3.0

	// Split of turning traffic between right and left turns.
	rightShare = 0.625
	leftShare  = 1 - rightShare

	turnSumTolerance = 1e-6
)

// ErrInvalidTurnProbabilities is returned when a turn split does not sum to 1
// or has a negative share.
var ErrInvalidTurnProbabilities = errors.New("turn probabilities must be non-negative and sum to 1")

// Movement is the turning movement a route makes at the intersection.
type Movement int

const (
	Straight Movement = iota
	Right
	Left
)

func (m Movement) String() string {
	switch m {
	case Straight:
		return "straight"
	case Right:
		return "right"
	case Left:
		return "left"
	}
	return fmt.Sprintf("Movement(%d)", int(m))
}

// TurnProbabilities is the route split applied to newly spawned vehicles.
type TurnProbabilities struct {
	Straight float64 `json:"straight"`
	Right    float64 `json:"right"`
	Left     float64 `json:"left"`
}

// DefaultTurnProbabilities is the 60/25/15 split.
var DefaultTurnProbabilities = TurnProbabilities{Straight: 0.6, Right: 0.25, Left: 0.15}

// TurnProbabilitiesFromRate splits rate between right and left turns and
// sends the rest straight.
func TurnProbabilitiesFromRate(rate float64) TurnProbabilities {
	rate = lo.Clamp(rate, 0, 1)
	return TurnProbabilities{Straight: 1 - rate, Right: rate * rightShare, Left: rate * leftShare}
}

// Validate returns ErrInvalidTurnProbabilities unless p is a distribution.
func (p TurnProbabilities) Validate() error {
	for _, x := range []float64{p.Straight, p.Right, p.Left} {
		if !(x >= 0) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: share outside [0,1] in %+v", ErrInvalidTurnProbabilities, p)
		}
	}
	if sum := p.Straight + p.Right + p.Left; math.Abs(sum-1) > turnSumTolerance {
		return fmt.Errorf("%w: got sum %.6f", ErrInvalidTurnProbabilities, sum)
	}
	return nil
}

// pick draws a movement for a uniform sample r in [0,1).
func (p TurnProbabilities) pick(r float64) Movement {
	switch {
	case r < p.Straight:
		return Straight
	case r < p.Straight+p.Right:
		return Right
	}
	return Left
}

type routeOption struct {
	movement Movement
	route    []int
	laneMin  int
	laneMax  int
}

// SetInflow sets the arrival rate in vehicles per hour. Negative rates are
// treated as zero.
func (s *Segment) SetInflow(vehPerHour float64) {
	s.inflowRate = max(0, vehPerHour)
}

// Inflow returns the arrival rate in vehicles per hour.
func (s *Segment) Inflow() float64 { return s.inflowRate }

// InflowParams are the network-wide inputs to a spawn decision.
type InflowParams struct {
	Turns         TurnProbabilities
	TruckFraction float64
	Models        Models
	NextID        func() uint64
}

// SpawnInflow accumulates the arrival counter and places at most one new
// vehicle. A blocked spawn keeps the counter for the next tick.
func (s *Segment) SpawnInflow(ctx StepContext, p InflowParams) *Vehicle {
	if len(s.routes) == 0 || s.inflowRate <= 0 {
		return nil
	}
	s.counter = min(s.counter+s.inflowRate/3600*ctx.Dt, MaxPending)
	if s.counter < 1 || ctx.Rng == nil {
		return nil
	}

	mv := p.Turns.pick(ctx.Rng.Float64())
	opt, ok := lo.Find(s.routes, func(o routeOption) bool { return o.movement == mv })
	if !ok {
		opt = s.routes[0]
	}

	kind := Car
	if ctx.Rng.Float64() < p.TruckFraction {
		kind = Truck
	}
	lane := opt.laneMin + ctx.Rng.IntN(opt.laneMax-opt.laneMin+1)

	if !s.laneClear(lane) {
		return nil
	}

	model := p.Models.For(kind)
	speed := model.DesiredSpeed(1) * (0.85 + 0.15*ctx.Rng.Float64())
	v := NewVehicle(kind, append([]int(nil), opt.route...), lane, speed, p.Models)
	v.SpawnTime = ctx.Now
	if p.NextID != nil {
		v.ID = p.NextID()
	}
	s.Add(v)
	s.counter--
	return v
}

func (s *Segment) laneClear(lane int) bool {
	return !lo.ContainsBy(s.Vehicles, func(o *Vehicle) bool {
		return o.Lane == lane && o.Rear() < SpawnClearance
	})
}

// Pending returns the fractional spawn counter.
func (s *Segment) Pending() float64 { return s.counter }
