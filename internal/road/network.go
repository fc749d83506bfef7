package road

import (
	"github.com/samber/lo"

	"github.com/banshee-data/intersection.sim/internal/config"
	"github.com/banshee-data/intersection.sim/internal/monitoring"
	"github.com/banshee-data/intersection.sim/internal/physics"
	"github.com/banshee-data/intersection.sim/internal/signal"
)

// StepResult reports vehicles that left the network during a step.
type StepResult struct {
	// Completed vehicles reached the end of their route.
	Completed []*Vehicle
	// Stranded vehicles ran off a segment with route left, having missed
	// their connection.
	Stranded    []*Vehicle
	Spawned     int
	Transferred int
	LaneChanges int
}

// Network is the fixed six-road intersection.
type Network struct {
	segments []*Segment

	models        Models
	turns         TurnProbabilities
	truckFraction float64
	nextID        uint64
}

// NewNetwork builds the topology and applies snap's demand and vehicle
// settings.
func NewNetwork(snap config.Snapshot) *Network {
	n := &Network{segments: buildSegments(), turns: DefaultTurnProbabilities}
	n.Apply(snap)
	return n
}

// Apply rebuilds the derived vehicle models, route split and inflow rates
// from snap.
func (n *Network) Apply(snap config.Snapshot) {
	n.SetVehicleParams(snap.CarSpeed, snap.TruckFraction)
	n.turns = TurnProbabilitiesFromRate(snap.TurnRate)
	for _, a := range signal.Approaches {
		n.SetDemand(a, snap.SpawnRatePerHour)
	}
}

// SetVehicleParams rebuilds the IDM parameter sets for a new desired car
// speed. Vehicles already on the road pick up the new models.
func (n *Network) SetVehicleParams(carSpeed, truckFraction float64) {
	n.models = NewModels(carSpeed)
	n.truckFraction = truckFraction
	for _, s := range n.segments {
		for _, v := range s.Vehicles {
			v.model = n.models.For(v.Kind)
		}
	}
}

// Models returns the current per-kind parameter sets.
func (n *Network) Models() Models { return n.models }

// Segments returns the roads indexed by ID.
func (n *Network) Segments() []*Segment { return n.segments }

// Segment returns road id. Unknown IDs fall back to road 0 with a warning.
func (n *Network) Segment(id int) *Segment {
	if id < 0 || id >= len(n.segments) {
		monitoring.Warnf("unknown road %d, using road 0", id)
		return n.segments[0]
	}
	return n.segments[id]
}

// ApproachRoad returns the entry road for an approach. Unknown approaches
// fall back to road 0 with a warning.
func ApproachRoad(a signal.Approach) int {
	id, ok := approachRoads[a]
	if !ok {
		monitoring.Warnf("unknown approach %d, using road 0", int(a))
		return Eastbound
	}
	return id
}

// RoadApproach returns the approach a road feeds, if it is an entry road.
func RoadApproach(road int) (signal.Approach, bool) {
	for a, id := range approachRoads {
		if id == road {
			return a, true
		}
	}
	return signal.North, false
}

// SetDemand sets the arrival rate of one approach in vehicles per hour.
func (n *Network) SetDemand(a signal.Approach, vehPerHour float64) {
	n.segments[ApproachRoad(a)].SetInflow(vehPerHour)
}

// Demand returns the arrival rate per approach.
func (n *Network) Demand() map[signal.Approach]float64 {
	out := make(map[signal.Approach]float64, len(signal.Approaches))
	for _, a := range signal.Approaches {
		out[a] = n.segments[ApproachRoad(a)].Inflow()
	}
	return out
}

// SetTurnProbabilities replaces the route split. An invalid split is
// rejected and the previous one kept.
func (n *Network) SetTurnProbabilities(p TurnProbabilities) error {
	if err := p.Validate(); err != nil {
		monitoring.Warnf("rejected turn probabilities: %v", err)
		return err
	}
	n.turns = p
	return nil
}

func (n *Network) TurnProbabilities() TurnProbabilities { return n.turns }

// AddVehicle places v on the head road of its route and assigns it an ID.
func (n *Network) AddVehicle(v *Vehicle) {
	if v.ID == 0 {
		v.ID = n.newID()
	}
	if v.model == (physics.IDM{}) {
		v.model = n.models.For(v.Kind)
	}
	road := 0
	if len(v.Route) > 0 {
		road = v.Route[0]
	}
	n.Segment(road).Add(v)
}

func (n *Network) newID() uint64 {
	n.nextID++
	return n.nextID
}

// Reset removes every vehicle and restarts ID assignment.
func (n *Network) Reset() {
	for _, s := range n.segments {
		s.Clear()
	}
	n.nextID = 0
}

// Vehicles returns every vehicle currently on the network.
func (n *Network) Vehicles() []*Vehicle {
	var out []*Vehicle
	for _, s := range n.segments {
		out = append(out, s.Vehicles...)
	}
	return out
}

// Count returns the number of vehicles on the network.
func (n *Network) Count() int {
	return lo.SumBy(n.segments, func(s *Segment) int { return len(s.Vehicles) })
}

// Step runs one tick over every segment in order: accelerations, inflow,
// transfers, lane enforcement, lane changes, integration, cleanup.
func (n *Network) Step(ctx StepContext) StepResult {
	var res StepResult
	ctx.ahead = n.leaderAhead

	for _, s := range n.segments {
		s.ComputeAccelerations(ctx)
	}

	params := InflowParams{Turns: n.turns, TruckFraction: n.truckFraction, Models: n.models, NextID: n.newID}
	for _, s := range n.segments {
		if s.SpawnInflow(ctx, params) != nil {
			res.Spawned++
		}
	}

	res.Transferred = n.transfer()

	for _, s := range n.segments {
		s.EnforceLanes()
	}
	for _, s := range n.segments {
		res.LaneChanges += s.ChangeLanes(ctx)
	}
	for _, s := range n.segments {
		s.Integrate(ctx.Dt)
	}

	for _, s := range n.segments {
		for _, v := range s.Cleanup() {
			if len(v.Route) > 1 {
				monitoring.Logf("vehicle %d stranded on %s with route %v", v.ID, s.Name, v.Route)
				res.Stranded = append(res.Stranded, v)
				continue
			}
			v.Route = v.Route[:0]
			res.Completed = append(res.Completed, v)
		}
	}
	return res
}

// transfer moves vehicles across connections whose next road matches.
func (n *Network) transfer() int {
	moved := 0
	for _, s := range n.segments {
		for _, c := range s.Connections {
			if c.To < 0 || c.To >= len(n.segments) {
				continue
			}
			target := n.segments[c.To]
			for _, v := range append([]*Vehicle(nil), s.Vehicles...) {
				next, ok := v.NextRoad()
				if !ok || next != c.To || v.U < c.SourceU {
					continue
				}
				s.remove(v)
				v.Route = v.Route[1:]
				v.U = c.TargetU
				target.Add(v)
				moved++
			}
		}
	}
	return moved
}

// leaderAhead looks past the end of s for the nearest vehicle v would meet
// after its next connection, in the same lane.
func (n *Network) leaderAhead(s *Segment, v *Vehicle) (*Vehicle, float64, bool) {
	next, ok := v.NextRoad()
	if !ok {
		return nil, 0, false
	}
	c, ok := lo.Find(s.Connections, func(c Connection) bool { return c.To == next })
	if !ok || c.To < 0 || c.To >= len(n.segments) {
		return nil, 0, false
	}
	var leader *Vehicle
	for _, o := range n.segments[c.To].Vehicles {
		if o.Lane != v.Lane || o.U < c.TargetU {
			continue
		}
		if leader == nil || o.U < leader.U {
			leader = o
		}
	}
	if leader == nil {
		return nil, 0, false
	}
	gap := (c.SourceU - v.U) + (leader.Rear() - c.TargetU)
	return leader, gap, true
}
