package road

import (
	"fmt"

	"github.com/banshee-data/intersection.sim/internal/physics"
)

// Kind is the closed set of vehicle classes.
type Kind int

const (
	Car Kind = iota
	Truck
)

func (k Kind) String() string {
	switch k {
	case Car:
		return "car"
	case Truck:
		return "truck"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "car":
		*k = Car
	case "truck":
		*k = Truck
	default:
		return fmt.Errorf("unknown vehicle kind %q", b)
	}
	return nil
}

// Length returns the bumper-to-bumper length in metres.
func (k Kind) Length() float64 {
	switch k {
	case Truck:
		return 12
	default:
		return 4.5
	}
}

// Width returns the body width in metres.
func (k Kind) Width() float64 {
	switch k {
	case Truck:
		return 2.5
	default:
		return 1.8
	}
}

// Models holds the IDM parameter set for each kind. It is rebuilt whenever
// the desired car speed changes.
type Models struct {
	Car   physics.IDM
	Truck physics.IDM
}

// NewModels derives both parameter sets from the configured car speed.
func NewModels(carSpeed float64) Models {
	return Models{Car: physics.CarIDM(carSpeed), Truck: physics.TruckIDM(carSpeed)}
}

// For returns the parameter set for k.
func (m Models) For(k Kind) physics.IDM {
	switch k {
	case Truck:
		return m.Truck
	default:
		return m.Car
	}
}

// Vehicle is one simulated road user. A vehicle is owned by exactly one
// Segment at a time and is moved between segments by pointer.
type Vehicle struct {
	ID    uint64
	Kind  Kind
	Route []int // head is the current road
	Road  int

	U     float64 // front bumper arc length on Road (m)
	Lane  int
	V     float64 // optical lateral lane coordinate, eased during changes
	Speed float64
	Acc   float64

	Length       float64
	Width        float64
	DriverFactor float64

	TimeSinceLastChange float64
	ChangeDuration      float64
	PrevLane            int
	MandatoryLaneChange bool
	TacticalLaneChange  bool

	OriginRoad int
	SpawnTime  float64
	WaitTime   float64 // seconds spent below StoppedSpeed

	model physics.IDM
}

// NewVehicle builds a vehicle of kind k with its route, parameters and
// default timers. The caller assigns the ID.
func NewVehicle(k Kind, route []int, lane int, speed float64, models Models) *Vehicle {
	road := 0
	if len(route) > 0 {
		road = route[0]
	}
	return &Vehicle{
		Kind:                k,
		Route:               route,
		Road:                road,
		Lane:                lane,
		V:                   float64(lane),
		PrevLane:            lane,
		Speed:               speed,
		Length:              k.Length(),
		Width:               k.Width(),
		DriverFactor:        1,
		TimeSinceLastChange: LaneChangeCooldown,
		ChangeDuration:      LaneChangeDuration,
		OriginRoad:          road,
		model:               models.For(k),
	}
}

// Rear returns the arc length of the rear bumper.
func (v *Vehicle) Rear() float64 { return v.U - v.Length }

// Model returns the IDM parameter set the vehicle drives with.
func (v *Vehicle) Model() physics.IDM { return v.model }

// NextRoad returns the road after the current one, if any.
func (v *Vehicle) NextRoad() (int, bool) {
	if len(v.Route) < 2 {
		return 0, false
	}
	return v.Route[1], true
}

// Changing reports whether the optical lane change animation is running.
func (v *Vehicle) Changing() bool {
	return v.PrevLane != v.Lane && v.TimeSinceLastChange < v.ChangeDuration
}

func (v *Vehicle) state() physics.State {
	return physics.State{
		U:            v.U,
		Speed:        v.Speed,
		Length:       v.Length,
		DriverFactor: v.DriverFactor,
		Model:        v.model,
	}
}

func (v *Vehicle) statePtr() *physics.State {
	if v == nil {
		return nil
	}
	s := v.state()
	return &s
}
