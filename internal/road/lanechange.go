package road

import "github.com/banshee-data/intersection.sim/internal/physics"

// MandatoryDistance is how close to its turn zone a vehicle in the wrong lane
// must be before the change becomes mandatory. Farther out it is tactical.
const MandatoryDistance = 90.0

// neighbours finds the nearest leader and follower of v in lane, which must
// be sorted by U. v itself is skipped.
func neighbours(lane []*Vehicle, v *Vehicle) (leader, follower *Vehicle) {
	for _, o := range lane {
		if o == v {
			continue
		}
		if o.U > v.U {
			if leader == nil || o.U < leader.U {
				leader = o
			}
		} else if follower == nil || o.U > follower.U {
			follower = o
		}
	}
	return leader, follower
}

// EnforceLanes flags vehicles whose upcoming turn needs a lane they are not
// in: mandatory within MandatoryDistance of the turn zone, tactical beyond.
func (s *Segment) EnforceLanes() {
	for _, v := range s.Vehicles {
		v.MandatoryLaneChange = false
		v.TacticalLaneChange = false

		next, ok := v.NextRoad()
		if !ok {
			continue
		}
		tp, ok := s.turnPathTo(next)
		if !ok || (v.Lane >= tp.LaneMin && v.Lane <= tp.LaneMax) {
			continue
		}
		dist := tp.UStart - v.U
		if dist <= 0 {
			continue
		}
		if dist <= MandatoryDistance {
			v.MandatoryLaneChange = true
		} else {
			v.TacticalLaneChange = true
		}
	}
}

type laneCandidate struct {
	target int
	dir    int
	model  physics.MOBIL
}

// candidates lists the lane changes worth evaluating for v.
func (s *Segment) candidates(v *Vehicle) []laneCandidate {
	laneMin, laneMax := s.RequiredLanes(v)
	toward := func(right, left physics.MOBIL) []laneCandidate {
		switch {
		case v.Lane < laneMin:
			return []laneCandidate{{target: v.Lane + 1, dir: physics.DirRight, model: right}}
		case v.Lane > laneMax:
			return []laneCandidate{{target: v.Lane - 1, dir: physics.DirLeft, model: left}}
		}
		return nil
	}

	switch {
	case v.MandatoryLaneChange:
		return toward(physics.MandatoryRight, physics.MandatoryLeft)
	case v.TacticalLaneChange:
		return toward(physics.Tactical, physics.Tactical)
	}

	var out []laneCandidate
	if v.Lane-1 >= laneMin {
		out = append(out, laneCandidate{target: v.Lane - 1, dir: physics.DirLeft, model: physics.Courtesy})
	}
	if v.Lane+1 <= laneMax {
		out = append(out, laneCandidate{target: v.Lane + 1, dir: physics.DirRight, model: physics.Courtesy})
	}
	return out
}

// ChangeLanes evaluates and executes lane changes. Accepted changes are
// applied immediately so later vehicles in the pass see them.
func (s *Segment) ChangeLanes(ctx StepContext) int {
	if s.Lanes < 2 {
		return 0
	}
	lanes := s.byLane()
	changed := 0

	for _, v := range s.Vehicles {
		if v.TimeSinceLastChange <= LaneChangeCooldown || v.U >= s.NoChangeU() {
			continue
		}

		var best *laneCandidate
		bestIncentive := 0.0
		for _, c := range s.candidates(v) {
			if c.target < 0 || c.target >= s.Lanes {
				continue
			}
			curLeader, curFollower := neighbours(lanes[v.Lane], v)
			tgtLeader, tgtFollower := neighbours(lanes[c.target], v)
			d := c.model.Evaluate(physics.Neighborhood{
				Self:        v.state(),
				CurLeader:   curLeader.statePtr(),
				CurFollower: curFollower.statePtr(),
				TgtLeader:   tgtLeader.statePtr(),
				TgtFollower: tgtFollower.statePtr(),
			}, c.dir)
			if d.Accept && (best == nil || d.Incentive > bestIncentive) {
				best = &c
				bestIncentive = d.Incentive
			}
		}
		if best == nil || best.target < 0 || best.target >= s.Lanes {
			continue
		}

		lanes[v.Lane] = removeVehicle(lanes[v.Lane], v)
		lanes[best.target] = insertByU(lanes[best.target], v)
		v.PrevLane = v.Lane
		v.Lane = best.target
		v.TimeSinceLastChange = 0
		v.MandatoryLaneChange = false
		v.TacticalLaneChange = false
		changed++
	}
	return changed
}

func removeVehicle(lane []*Vehicle, v *Vehicle) []*Vehicle {
	out := lane[:0:0]
	for _, o := range lane {
		if o != v {
			out = append(out, o)
		}
	}
	return out
}

func insertByU(lane []*Vehicle, v *Vehicle) []*Vehicle {
	i := 0
	for i < len(lane) && lane[i].U <= v.U {
		i++
	}
	lane = append(lane, nil)
	copy(lane[i+1:], lane[i:])
	lane[i] = v
	return lane
}
