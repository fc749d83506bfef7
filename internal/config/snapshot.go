package config

// Snapshot is the immutable, unit-converted view of Settings that the engine
// consumes each tick. It is a plain value: holders get their own copy, and a
// settings change means building a new Snapshot rather than mutating one.
type Snapshot struct {
	GreenSeconds     float64 `json:"green_seconds"`
	YellowSeconds    float64 `json:"yellow_seconds"`
	RedSeconds       float64 `json:"red_seconds"`
	MinGreenSeconds  float64 `json:"min_green_seconds"`
	SpawnRatePerHour float64 `json:"spawn_rate_per_hour"` // per approach
	TurnRate         float64 `json:"turn_rate"`
	TruckFraction    float64 `json:"truck_fraction"`
	CarSpeed         float64 `json:"car_speed"`
	DetectorDistance float64 `json:"detector_distance"`
	Dt               float64 `json:"dt"`
	Mode             string  `json:"mode"`
	Seed             uint64  `json:"seed"`
}

// Snapshot converts the settings (ms, veh/min) into engine units (s, veh/h).
func (s *Settings) Snapshot() Snapshot {
	return Snapshot{
		GreenSeconds:     s.GetGreenDuration() / 1000,
		YellowSeconds:    s.GetYellowDuration() / 1000,
		RedSeconds:       s.GetRedDuration() / 1000,
		MinGreenSeconds:  s.GetMinGreenTime() / 1000,
		SpawnRatePerHour: s.GetCarSpawnRate() * 60,
		TurnRate:         s.GetTurnRate(),
		TruckFraction:    s.GetTruckFraction(),
		CarSpeed:         s.GetCarSpeed(),
		DetectorDistance: s.GetDetectorDistance(),
		Dt:               s.GetPhysicsTimestep() / 1000,
		Mode:             s.GetMode(),
		Seed:             s.GetSeed(),
	}
}

// DefaultSnapshot is DefaultSettings().Snapshot().
func DefaultSnapshot() Snapshot {
	return DefaultSettings().Snapshot()
}

// Settings converts the snapshot back to boundary units, for exports.
func (s Snapshot) Settings() *Settings {
	return &Settings{
		GreenDuration:    ptrFloat64(s.GreenSeconds * 1000),
		YellowDuration:   ptrFloat64(s.YellowSeconds * 1000),
		RedDuration:      ptrFloat64(s.RedSeconds * 1000),
		MinGreenTime:     ptrFloat64(s.MinGreenSeconds * 1000),
		CarSpawnRate:     ptrFloat64(s.SpawnRatePerHour / 60),
		TurnRate:         ptrFloat64(s.TurnRate),
		TruckFraction:    ptrFloat64(s.TruckFraction),
		CarSpeed:         ptrFloat64(s.CarSpeed),
		DetectorDistance: ptrFloat64(s.DetectorDistance),
		PhysicsTimestep:  ptrFloat64(s.Dt * 1000),
		Mode:             ptrString(s.Mode),
		Seed:             ptrUint64(s.Seed),
	}
}
