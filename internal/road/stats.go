package road

import (
	"github.com/samber/lo"

	"github.com/banshee-data/intersection.sim/internal/units"
)

// RoadStats summarises the traffic on one segment.
type RoadStats struct {
	Vehicles     int     `json:"vehicles"`
	AverageSpeed float64 `json:"averageSpeed"` // m/s
	Density      float64 `json:"density"`      // veh/km
	Flow         float64 `json:"flow"`         // veh/h
}

// TrafficStatistics summarises the whole network.
type TrafficStatistics struct {
	TotalVehicles int               `json:"totalVehicles"`
	AverageSpeed  float64           `json:"averageSpeed"` // m/s
	RoadStats     map[int]RoadStats `json:"roadStats"`
}

// Stats computes the segment summary. Flow is density times space-mean
// speed.
func (s *Segment) Stats() RoadStats {
	n := len(s.Vehicles)
	if n == 0 {
		return RoadStats{}
	}
	avg := lo.SumBy(s.Vehicles, func(v *Vehicle) float64 { return v.Speed }) / float64(n)
	k := units.DensityPerKm(n, s.Length)
	return RoadStats{
		Vehicles:     n,
		AverageSpeed: avg,
		Density:      k,
		Flow:         units.FlowPerHour(k, avg),
	}
}

// Statistics computes per-road and network-wide summaries.
func (n *Network) Statistics() TrafficStatistics {
	out := TrafficStatistics{RoadStats: make(map[int]RoadStats, len(n.segments))}
	var speedSum float64
	for _, s := range n.segments {
		st := s.Stats()
		out.RoadStats[s.ID] = st
		out.TotalVehicles += st.Vehicles
		speedSum += st.AverageSpeed * float64(st.Vehicles)
	}
	if out.TotalVehicles > 0 {
		out.AverageSpeed = speedSum / float64(out.TotalVehicles)
	}
	return out
}
