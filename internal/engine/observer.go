package engine

import (
	"github.com/banshee-data/intersection.sim/internal/detection"
	"github.com/banshee-data/intersection.sim/internal/road"
	"github.com/banshee-data/intersection.sim/internal/signal"
)

// VehicleCompletion describes a vehicle that finished its route.
type VehicleCompletion struct {
	VehicleID   uint64    `json:"vehicleId"`
	Kind        road.Kind `json:"kind"`
	OriginRoad  int       `json:"originRoad"`
	ExitRoad    int       `json:"exitRoad"`
	SpawnTime   float64   `json:"spawnTime"`
	CompletedAt float64   `json:"completedAt"`
	TravelTime  float64   `json:"travelTime"`
	WaitTime    float64   `json:"waitTime"`
}

// StatisticsTick is emitted once per simulated second.
type StatisticsTick struct {
	SimTime    float64                `json:"simTime"`
	Statistics Statistics             `json:"statistics"`
	Traffic    road.TrafficStatistics `json:"traffic"`
	Sensors    []detection.ZoneState  `json:"sensors"`
	Lights     map[string]string      `json:"lights"`
	Signal     signal.State           `json:"signal"`
	Scores     signal.Scores          `json:"scores"`
}

// Observer receives engine events. Calls happen inside a tick on the engine
// goroutine and must not block.
type Observer interface {
	OnVehicleCompleted(VehicleCompletion)
	OnStatisticsTick(StatisticsTick)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	VehicleCompleted func(VehicleCompletion)
	StatisticsTick   func(StatisticsTick)
}

func (o ObserverFuncs) OnVehicleCompleted(c VehicleCompletion) {
	if o.VehicleCompleted != nil {
		o.VehicleCompleted(c)
	}
}

func (o ObserverFuncs) OnStatisticsTick(t StatisticsTick) {
	if o.StatisticsTick != nil {
		o.StatisticsTick(t)
	}
}
