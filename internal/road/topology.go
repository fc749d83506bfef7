package road

import (
	"math"

	"github.com/banshee-data/intersection.sim/internal/signal"
)

// Road identifiers of the intersection.
const (
	Eastbound  = 0
	Westbound  = 1
	Northbound = 2 // entry from the south
	NorthExit  = 3
	Southbound = 4 // entry from the north
	SouthExit  = 5

	RoadCount = 6
)

// Intersection geometry. The box spans ±BoxHalf on both axes.
const (
	LaneWidth    = 3.5
	LanesPerRoad = 2
	BoxHalf      = 7.0

	StopLineU = 142.0
	// turnStartU is where turn paths leave the approach centerline.
	turnStartU = 143.0
	// straightExitU is where straight traffic from a vertical entry reaches
	// the far side of the box.
	straightExitU = 157.0
	// joinU is where turning traffic joins a through road.
	joinU = 157.0

	rightRadius = LaneWidth
	leftRadius  = 3 * LaneWidth

	horizontalLength = 300.0
	entryLength      = 165.0
	exitLength       = 143.0

	innerLane = 0
	rightLane = LanesPerRoad - 1
)

var roadNames = [RoadCount]string{
	Eastbound:  "eastbound",
	Westbound:  "westbound",
	Northbound: "northbound-in",
	NorthExit:  "north-exit",
	Southbound: "southbound-in",
	SouthExit:  "south-exit",
}

var approachRoads = map[signal.Approach]int{
	signal.North: Southbound,
	signal.South: Northbound,
	signal.East:  Westbound,
	signal.West:  Eastbound,
}

// RoadName returns the human readable name of a road.
func RoadName(id int) string {
	if id < 0 || id >= RoadCount {
		return "unknown"
	}
	return roadNames[id]
}

type turnSpec struct {
	from, to      int
	movement      Movement
	cx, cy        float64
	start, sweep  float64
	radius        float64
	targetU       float64
	laneMin       int
	laneMax       int
	straightRoute bool
}

// buildSegments lays out the six roads with their turn paths, connections
// and route tables.
func buildSegments() []*Segment {
	segs := make([]*Segment, RoadCount)
	half := horizontalLength / 2

	segs[Eastbound] = NewSegment(Eastbound, roadNames[Eastbound], horizontalLength, LanesPerRoad, LaneWidth,
		Line{X0: -half, Y0: -LaneWidth, Heading: 0, Len: horizontalLength})
	segs[Westbound] = NewSegment(Westbound, roadNames[Westbound], horizontalLength, LanesPerRoad, LaneWidth,
		Line{X0: half, Y0: LaneWidth, Heading: math.Pi, Len: horizontalLength})
	segs[Northbound] = NewSegment(Northbound, roadNames[Northbound], entryLength, LanesPerRoad, LaneWidth,
		Line{X0: LaneWidth, Y0: -half, Heading: math.Pi / 2, Len: entryLength})
	segs[NorthExit] = NewSegment(NorthExit, roadNames[NorthExit], exitLength, LanesPerRoad, LaneWidth,
		Line{X0: LaneWidth, Y0: BoxHalf, Heading: math.Pi / 2, Len: exitLength})
	segs[Southbound] = NewSegment(Southbound, roadNames[Southbound], entryLength, LanesPerRoad, LaneWidth,
		Line{X0: -LaneWidth, Y0: half, Heading: -math.Pi / 2, Len: entryLength})
	segs[SouthExit] = NewSegment(SouthExit, roadNames[SouthExit], exitLength, LanesPerRoad, LaneWidth,
		Line{X0: -LaneWidth, Y0: -BoxHalf, Heading: -math.Pi / 2, Len: exitLength})

	for a, id := range approachRoads {
		segs[id].Signalized = true
		segs[id].Approach = a
		segs[id].StopLine = StopLineU
	}

	q := math.Pi / 2
	turns := []turnSpec{
		// eastbound
		{from: Eastbound, to: SouthExit, movement: Right, cx: -BoxHalf, cy: -BoxHalf, start: q, sweep: -q, radius: rightRadius, targetU: 0},
		{from: Eastbound, to: NorthExit, movement: Left, cx: -BoxHalf, cy: BoxHalf, start: -q, sweep: q, radius: leftRadius, targetU: 0},
		// westbound
		{from: Westbound, to: NorthExit, movement: Right, cx: BoxHalf, cy: BoxHalf, start: -q, sweep: -q, radius: rightRadius, targetU: 0},
		{from: Westbound, to: SouthExit, movement: Left, cx: BoxHalf, cy: -BoxHalf, start: q, sweep: q, radius: leftRadius, targetU: 0},
		// northbound
		{from: Northbound, to: Eastbound, movement: Right, cx: BoxHalf, cy: -BoxHalf, start: math.Pi, sweep: -q, radius: rightRadius, targetU: joinU},
		{from: Northbound, to: Westbound, movement: Left, cx: -BoxHalf, cy: -BoxHalf, start: 0, sweep: q, radius: leftRadius, targetU: joinU},
		// southbound
		{from: Southbound, to: Westbound, movement: Right, cx: -BoxHalf, cy: BoxHalf, start: 0, sweep: -q, radius: rightRadius, targetU: joinU},
		{from: Southbound, to: Eastbound, movement: Left, cx: BoxHalf, cy: BoxHalf, start: math.Pi, sweep: q, radius: leftRadius, targetU: joinU},
	}
	for _, t := range turns {
		arc := Arc{CX: t.cx, CY: t.cy, Radius: t.radius, Start: t.start, Sweep: t.sweep}
		laneMin, laneMax := rightLane, rightLane
		if t.movement == Left {
			laneMin, laneMax = innerLane, innerLane
		}
		src := segs[t.from]
		src.TurnPaths = append(src.TurnPaths, TurnPath{
			To: t.to, UStart: turnStartU, UEnd: turnStartU + arc.Length(),
			LaneMin: laneMin, LaneMax: laneMax, Path: arc,
		})
		src.Connections = append(src.Connections, Connection{To: t.to, SourceU: turnStartU + arc.Length(), TargetU: t.targetU})
		src.routes = append(src.routes, routeOption{movement: t.movement, route: []int{t.from, t.to}, laneMin: laneMin, laneMax: laneMax})
	}

	// Through traffic: horizontal roads run straight across, vertical entries
	// hand over to the opposite exit.
	segs[Eastbound].routes = append(segs[Eastbound].routes, routeOption{movement: Straight, route: []int{Eastbound}, laneMax: rightLane})
	segs[Westbound].routes = append(segs[Westbound].routes, routeOption{movement: Straight, route: []int{Westbound}, laneMax: rightLane})
	segs[Northbound].routes = append(segs[Northbound].routes, routeOption{movement: Straight, route: []int{Northbound, NorthExit}, laneMax: rightLane})
	segs[Southbound].routes = append(segs[Southbound].routes, routeOption{movement: Straight, route: []int{Southbound, SouthExit}, laneMax: rightLane})
	segs[Northbound].Connections = append(segs[Northbound].Connections, Connection{To: NorthExit, SourceU: straightExitU, TargetU: 0})
	segs[Southbound].Connections = append(segs[Southbound].Connections, Connection{To: SouthExit, SourceU: straightExitU, TargetU: 0})

	return segs
}
