// Package detection models the virtual loop detectors upstream of each stop
// line and turns their counts into per-pair demand scores for adaptive
// signal control.
package detection

import (
	"github.com/samber/lo"

	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/signal"
)

// ZoneState is the public view of one approach's detector.
type ZoneState struct {
	Approach signal.Approach `json:"approach"`
	Road     int             `json:"road"`
	Rect     road.Rect       `json:"rect"`
	// Waiting is the number of vehicles inside the zone this tick.
	Waiting int `json:"waiting"`
	// Closest is the ID of the waiting vehicle nearest the stop line, 0 when
	// the zone is empty.
	Closest uint64 `json:"closest"`
	// DistinctCount counts zone entries since the last full or pair reset.
	DistinctCount int `json:"distinctCount"`
	// WaitTime is how long Closest has been inside the zone (s).
	WaitTime float64 `json:"waitTime"`
}

type zone struct {
	ZoneState

	rectFor float64 // detector distance the cached rect was built for
	hasRect bool
	inside  map[uint64]float64 // vehicle ID -> zone entry time
}

func (z *zone) clearOccupancy() {
	z.Waiting = 0
	z.Closest = 0
	z.WaitTime = 0
	clear(z.inside)
}

// Aggregator owns one zone per approach.
type Aggregator struct {
	zones    [len(signal.Approaches)]*zone
	distance float64
}

// NewAggregator returns an aggregator with zones distance metres long.
func NewAggregator(distance float64) *Aggregator {
	a := &Aggregator{distance: distance}
	for _, ap := range signal.Approaches {
		a.zones[ap] = &zone{
			ZoneState: ZoneState{Approach: ap, Road: road.ApproachRoad(ap)},
			inside:    make(map[uint64]float64),
		}
	}
	return a
}

// SetDistance changes the zone length. Rectangles are rebuilt lazily on the
// next Update.
func (a *Aggregator) SetDistance(distance float64) { a.distance = distance }

// Distance returns the configured zone length.
func (a *Aggregator) Distance() float64 { return a.distance }

// Update samples every red approach at simulated time now.
func (a *Aggregator) Update(net *road.Network, colors signal.Colors, now float64) {
	for _, z := range a.zones {
		if colors.Of(z.Approach) != signal.Red {
			continue
		}
		seg := net.Segment(z.Road)
		if !z.hasRect || z.rectFor != a.distance {
			r, ok := seg.DetectionRect(a.distance)
			if !ok {
				continue
			}
			z.Rect, z.rectFor, z.hasRect = r, a.distance, true
		}
		a.sample(z, seg, now)
	}
}

func (a *Aggregator) sample(z *zone, seg *road.Segment, now float64) {
	present := make(map[uint64]bool, len(z.inside))
	var closest *road.Vehicle
	for _, v := range seg.Vehicles {
		p, ok := seg.Pose(v)
		if !ok || !z.Rect.Contains(p.X, p.Y) {
			continue
		}
		present[v.ID] = true
		if _, seen := z.inside[v.ID]; !seen {
			z.inside[v.ID] = now
			z.DistinctCount++
		}
		if closest == nil || v.U > closest.U {
			closest = v
		}
	}
	for id := range z.inside {
		if !present[id] {
			delete(z.inside, id)
		}
	}

	z.Waiting = len(present)
	if closest == nil {
		z.Closest = 0
		z.WaitTime = 0
		return
	}
	z.Closest = closest.ID
	z.WaitTime = now - z.inside[closest.ID]
}

// OnColorChange clears the occupancy of approaches whose color just changed.
// Distinct counts are kept.
func (a *Aggregator) OnColorChange(changed []signal.Approach) {
	for _, ap := range changed {
		if ap.Valid() {
			a.zones[ap].clearOccupancy()
		}
	}
}

// ResetPair clears the distinct counts of both approaches in p.
func (a *Aggregator) ResetPair(p signal.Pair) {
	for _, ap := range p.Approaches() {
		a.zones[ap].DistinctCount = 0
	}
}

// Reset clears every zone, including cached rectangles.
func (a *Aggregator) Reset() {
	for _, z := range a.zones {
		z.clearOccupancy()
		z.DistinctCount = 0
		z.hasRect = false
	}
}

// Score is the demand priority of one approach:
// waiting vehicles times the lead vehicle's wait, plus distinct arrivals.
func (z ZoneState) Score() float64 {
	return float64(z.Waiting)*z.WaitTime + float64(z.DistinctCount)
}

// Scores sums the approach scores per pair.
func (a *Aggregator) Scores() signal.Scores {
	var s signal.Scores
	for _, z := range a.zones {
		switch signal.PairOf(z.Approach) {
		case signal.PairNS:
			s.NS += z.Score()
		case signal.PairWE:
			s.WE += z.Score()
		}
	}
	return s
}

// SensorData returns every zone in approach order.
func (a *Aggregator) SensorData() []ZoneState {
	return lo.Map(a.zones[:], func(z *zone, _ int) ZoneState { return z.ZoneState })
}

// Zone returns one approach's state.
func (a *Aggregator) Zone(ap signal.Approach) ZoneState {
	if !ap.Valid() {
		return ZoneState{}
	}
	return a.zones[ap].ZoneState
}

// TotalCarsDetected sums the distinct counts of every zone.
func (a *Aggregator) TotalCarsDetected() int {
	return lo.SumBy(a.zones[:], func(z *zone) int { return z.DistinctCount })
}
