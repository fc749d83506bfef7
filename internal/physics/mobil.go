package physics

// Lane-change directions. Lane indices grow to the right.
const (
	DirLeft  = -1
	DirRight = 1
)

// mandatoryUrgency scales the threshold for mandatory changes: halving the
// bar doubles the acceptance.
const mandatoryUrgency = 0.5

// State is the slice of a vehicle's state the driving laws look at.
type State struct {
	U            float64 // front bumper arc length (m)
	Speed        float64
	Length       float64
	DriverFactor float64
	Model        IDM
}

// Rear returns the arc length of the vehicle's rear bumper.
func (s State) Rear() float64 { return s.U - s.Length }

// Neighborhood is the candidate plus its nearest neighbours in the current
// and target lanes. Nil entries mean "nobody in range".
type Neighborhood struct {
	Self        State
	CurLeader   *State
	CurFollower *State
	TgtLeader   *State
	TgtFollower *State
}

// MOBIL holds the lane-change parameters for one change category.
type MOBIL struct {
	Politeness     float64
	Threshold      float64 // m/s²
	RightBias      float64 // m/s², added for changes to the right
	BSafe          float64 // max deceleration imposed on the new follower (m/s², positive)
	MandatoryBonus float64 // m/s², added to the incentive when Mandatory
	Mandatory      bool
}

// Preset models, one per change category.
var (
	MandatoryRight = MOBIL{Politeness: 0, Threshold: 0.1, RightBias: 0.3, BSafe: 6, MandatoryBonus: 3, Mandatory: true}
	MandatoryLeft  = MOBIL{Politeness: 0, Threshold: 0.1, RightBias: 0, BSafe: 6, MandatoryBonus: 3, Mandatory: true}
	Tactical       = MOBIL{Politeness: 0.2, Threshold: 0.2, RightBias: 0.1, BSafe: 4, MandatoryBonus: 0.5}
	Courtesy       = MOBIL{Politeness: 0.5, Threshold: 0.3, RightBias: 0.2, BSafe: 4}
)

// Decision is the outcome of a lane-change evaluation.
type Decision struct {
	Accept    bool
	Incentive float64
	// FollowerAccel is the acceleration the change would impose on the new
	// target-lane follower (0 when there is none).
	FollowerAccel float64
	Reason        string
}

// accelBehind returns the acceleration of follower f given leader l.
// A nil leader means free road.
func accelBehind(f State, l *State) float64 {
	if l == nil {
		return f.Model.FreeAccel(f.Speed, f.DriverFactor)
	}
	return f.Model.Accel(l.Rear()-f.U, f.Speed, l.Speed, f.DriverFactor)
}

// Evaluate runs the safety gate and incentive criterion for a change in
// direction dir (DirLeft or DirRight).
func (m MOBIL) Evaluate(n Neighborhood, dir int) Decision {
	self := n.Self

	if n.TgtFollower != nil && n.TgtFollower.U > self.Rear() {
		return Decision{Reason: "overlap with target follower"}
	}
	if n.TgtLeader != nil && n.TgtLeader.Rear() < self.U {
		return Decision{Reason: "overlap with target leader"}
	}

	var tgtFollowerOld, tgtFollowerNew float64
	if n.TgtFollower != nil {
		tgtFollowerOld = accelBehind(*n.TgtFollower, n.TgtLeader)
		tgtFollowerNew = accelBehind(*n.TgtFollower, &self)
		if tgtFollowerNew < -m.BSafe {
			return Decision{FollowerAccel: tgtFollowerNew, Reason: "unsafe for target follower"}
		}
	}

	var curFollowerOld, curFollowerNew float64
	if n.CurFollower != nil {
		curFollowerOld = accelBehind(*n.CurFollower, &self)
		curFollowerNew = accelBehind(*n.CurFollower, n.CurLeader)
	}

	accCurrent := accelBehind(self, n.CurLeader)
	accTarget := accelBehind(self, n.TgtLeader)
	othersGain := (curFollowerNew - curFollowerOld) + (tgtFollowerNew - tgtFollowerOld)

	incentive := accTarget - accCurrent + m.Politeness*othersGain
	if dir > 0 {
		incentive += m.RightBias
	}

	urgency := 1.0
	if m.Mandatory {
		incentive += m.MandatoryBonus
		urgency = mandatoryUrgency
	}

	d := Decision{Incentive: incentive, FollowerAccel: tgtFollowerNew}
	if incentive > m.Threshold*urgency {
		d.Accept = true
		d.Reason = "accepted"
	} else {
		d.Reason = "insufficient incentive"
	}
	return d
}
