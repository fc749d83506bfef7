package road

import (
	"math/rand/v2"
	"slices"

	"github.com/samber/lo"

	"github.com/banshee-data/intersection.sim/internal/physics"
	"github.com/banshee-data/intersection.sim/internal/signal"
)

// Per-vehicle limits and timers applied by every segment.
const (
	AccelMin = -9.0 // m/s²
	AccelMax = 4.0  // m/s²

	LaneChangeCooldown = 4.0 // s between changes
	LaneChangeDuration = 2.0 // s of optical easing

	// StoppedSpeed is the speed below which a vehicle accrues wait time.
	StoppedSpeed = 0.5
	// Overshoot is how far past the segment end a vehicle may travel before
	// it is removed.
	Overshoot = 5.0
)

// StepContext carries what a segment pass needs from the outside world for
// one tick.
type StepContext struct {
	Dt     float64
	Now    float64 // simulated seconds at the start of the tick
	Rng    *rand.Rand
	Colors signal.Colors

	// ahead finds the nearest vehicle beyond the segment end for the last
	// vehicle in a lane. Set by Network.
	ahead func(s *Segment, v *Vehicle) (leader *Vehicle, gap float64, ok bool)
}

// TurnPath is an alternate trajectory used to draw vehicles that leave the
// segment towards To. It does not affect U.
type TurnPath struct {
	To      int
	UStart  float64
	UEnd    float64
	LaneMin int
	LaneMax int
	Path    Trajectory
}

// Connection moves vehicles whose next road is To once they reach SourceU.
type Connection struct {
	To      int
	SourceU float64
	TargetU float64
}

// Segment is one directed road with its lanes and the vehicles on it.
type Segment struct {
	ID        int
	Name      string
	Length    float64
	Lanes     int
	LaneWidth float64
	Path      Trajectory // nil when geometry has not been configured

	TurnPaths   []TurnPath
	Connections []Connection

	// StopLine is the arc length of the stop line, 0 when unsignalized.
	StopLine   float64
	Signalized bool
	Approach   signal.Approach

	Vehicles []*Vehicle

	inflowRate float64 // veh/h
	counter    float64
	routes     []routeOption
}

// NewSegment returns an empty segment.
func NewSegment(id int, name string, length float64, lanes int, laneWidth float64, path Trajectory) *Segment {
	return &Segment{ID: id, Name: name, Length: length, Lanes: lanes, LaneWidth: laneWidth, Path: path}
}

func (s *Segment) color(ctx StepContext) signal.Color {
	if !s.Signalized {
		return signal.Green
	}
	return ctx.Colors.Of(s.Approach)
}

// byLane partitions the vehicles by lane, each lane sorted by U ascending.
func (s *Segment) byLane() [][]*Vehicle {
	lanes := make([][]*Vehicle, s.Lanes)
	for _, v := range s.Vehicles {
		if v.Lane < 0 || v.Lane >= s.Lanes {
			continue
		}
		lanes[v.Lane] = append(lanes[v.Lane], v)
	}
	for _, l := range lanes {
		slices.SortStableFunc(l, func(a, b *Vehicle) int {
			switch {
			case a.U < b.U:
				return -1
			case a.U > b.U:
				return 1
			}
			return 0
		})
	}
	return lanes
}

func (s *Segment) sortVehicles() {
	slices.SortStableFunc(s.Vehicles, func(a, b *Vehicle) int {
		switch {
		case a.U < b.U:
			return -1
		case a.U > b.U:
			return 1
		}
		return 0
	})
}

// ComputeAccelerations runs the car-following law for every vehicle.
func (s *Segment) ComputeAccelerations(ctx StepContext) {
	color := s.color(ctx)
	for _, lane := range s.byLane() {
		for i, v := range lane {
			v.DriverFactor = physics.PerturbDriver(v.DriverFactor, ctx.Rng)
			m := v.model

			acc := m.FreeAccel(v.Speed, v.DriverFactor)
			if i+1 < len(lane) {
				l := lane[i+1]
				acc = m.Accel(l.Rear()-v.U, v.Speed, l.Speed, v.DriverFactor)
			} else if ctx.ahead != nil {
				if l, gap, ok := ctx.ahead(s, v); ok {
					acc = m.Accel(gap, v.Speed, l.Speed, v.DriverFactor)
				}
			}

			if dist, stop := s.mustStop(v, color); stop {
				acc = min(acc, m.StopAccel(dist, v.Speed, v.DriverFactor))
			}
			v.Acc = lo.Clamp(acc, AccelMin, AccelMax)
		}
	}
}

// mustStop reports whether v treats the stop line as a stationary obstacle,
// and how far away it is.
func (s *Segment) mustStop(v *Vehicle, c signal.Color) (float64, bool) {
	if !s.Signalized || s.StopLine <= 0 || v.U > s.StopLine {
		return 0, false
	}
	dist := s.StopLine - v.U
	switch c {
	case signal.Red:
		return dist, true
	case signal.Yellow:
		return dist, v.model.CanStopComfortably(dist, v.Speed)
	}
	return 0, false
}

// Integrate advances positions and speeds by dt using each vehicle's
// acceleration from this tick, then updates the optical lane coordinate.
func (s *Segment) Integrate(dt float64) {
	for _, v := range s.Vehicles {
		v.U += max(0, v.Speed*dt+0.5*v.Acc*dt*dt)
		v.Speed = max(0, v.Speed+v.Acc*dt)
		v.TimeSinceLastChange += dt
		if v.Speed < StoppedSpeed {
			v.WaitTime += dt
		}
	}
	s.Interpolate()
	s.sortVehicles()
}

// Interpolate eases V from PrevLane to Lane over ChangeDuration.
func (s *Segment) Interpolate() {
	for _, v := range s.Vehicles {
		if v.ChangeDuration <= 0 || v.TimeSinceLastChange >= v.ChangeDuration {
			v.V = float64(v.Lane)
			continue
		}
		e := EaseInOut(v.TimeSinceLastChange / v.ChangeDuration)
		v.V = float64(v.PrevLane) + float64(v.Lane-v.PrevLane)*e
	}
}

// EaseInOut is the quadratic S-curve: 2f² up to the midpoint, then
// 1-2(1-f)². Input is clamped to [0,1].
func EaseInOut(f float64) float64 {
	f = lo.Clamp(f, 0, 1)
	if f < 0.5 {
		return 2 * f * f
	}
	g := 1 - f
	return 1 - 2*g*g
}

// Cleanup removes and returns vehicles past the segment end plus Overshoot.
func (s *Segment) Cleanup() []*Vehicle {
	var gone []*Vehicle
	s.Vehicles = lo.Filter(s.Vehicles, func(v *Vehicle, _ int) bool {
		if v.U > s.Length+Overshoot {
			gone = append(gone, v)
			return false
		}
		return true
	})
	return gone
}

// Add places v on the segment, clamping its lane into range.
func (s *Segment) Add(v *Vehicle) {
	v.Road = s.ID
	v.Lane = lo.Clamp(v.Lane, 0, s.Lanes-1)
	v.PrevLane = lo.Clamp(v.PrevLane, 0, s.Lanes-1)
	s.Vehicles = append(s.Vehicles, v)
	s.sortVehicles()
}

func (s *Segment) remove(v *Vehicle) {
	s.Vehicles = lo.Without(s.Vehicles, v)
}

// Clear drops every vehicle and the inflow counter.
func (s *Segment) Clear() {
	s.Vehicles = nil
	s.counter = 0
}

// turnPathTo returns the turn path towards road, if the segment has one.
func (s *Segment) turnPathTo(road int) (TurnPath, bool) {
	return lo.Find(s.TurnPaths, func(tp TurnPath) bool { return tp.To == road })
}

// RequiredLanes returns the lane range v must be in to follow its route.
func (s *Segment) RequiredLanes(v *Vehicle) (int, int) {
	if next, ok := v.NextRoad(); ok {
		if tp, ok := s.turnPathTo(next); ok {
			return tp.LaneMin, tp.LaneMax
		}
	}
	return 0, s.Lanes - 1
}

// NoChangeU is the arc length past which lane changes are not allowed.
func (s *Segment) NoChangeU() float64 {
	if s.StopLine > 0 {
		return s.StopLine
	}
	return s.Length
}

// LaneOffset returns the distance right of the centerline for optical lane
// coordinate lane.
func (s *Segment) LaneOffset(lane float64) float64 {
	return (lane + 0.5 - float64(s.Lanes)/2) * s.LaneWidth
}

// Pose returns v's world pose, following a turn path when v is inside its
// window. ok is false when the segment has no geometry.
func (s *Segment) Pose(v *Vehicle) (Pose, bool) {
	if s.Path == nil {
		return Pose{}, false
	}
	off := s.LaneOffset(v.V)
	if next, ok := v.NextRoad(); ok {
		if tp, ok := s.turnPathTo(next); ok && tp.Path != nil && v.U >= tp.UStart && v.U <= tp.UEnd {
			return tp.Path.At(v.U - tp.UStart).Offset(off), true
		}
	}
	return s.Path.At(v.U).Offset(off), true
}

// DetectionRect returns the rectangle covering every lane from distance
// metres upstream of the stop line to the stop line.
func (s *Segment) DetectionRect(distance float64) (Rect, bool) {
	if s.Path == nil || s.StopLine <= 0 {
		return Rect{}, false
	}
	from := max(0, s.StopLine-distance)
	half := float64(s.Lanes) * s.LaneWidth / 2
	return rectAround(s.Path.At(from), s.Path.At(s.StopLine), half), true
}
