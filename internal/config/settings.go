package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical simulation defaults file.
const DefaultConfigPath = "config/sim.defaults.json"

// Signal control modes.
const (
	ModeFixed    = "fixed"
	ModeAdaptive = "adaptive"
)

// Settings is the configuration pushed into the engine by its collaborators.
// The schema matches the /api/config endpoint so the same JSON can be used for
// both startup configuration and runtime updates. Durations cross the boundary
// in milliseconds; Snapshot converts them to seconds.
type Settings struct {
	// Signal timing (ms)
	GreenDuration  *float64 `json:"green_duration,omitempty"`
	YellowDuration *float64 `json:"yellow_duration,omitempty"`
	RedDuration    *float64 `json:"red_duration,omitempty"`
	MinGreenTime   *float64 `json:"min_green_time,omitempty"`

	// Demand
	CarSpawnRate  *float64 `json:"car_spawn_rate,omitempty"` // vehicles per minute per approach
	TurnRate      *float64 `json:"turn_rate,omitempty"`      // share of turning vehicles [0,1]
	TruckFraction *float64 `json:"truck_fraction,omitempty"`

	// Vehicles and sensors
	CarSpeed         *float64 `json:"car_speed,omitempty"`         // desired speed, m/s
	DetectorDistance *float64 `json:"detector_distance,omitempty"` // metres upstream of the stop line

	// Engine
	PhysicsTimestep *float64 `json:"physics_timestep,omitempty"` // ms
	Mode            *string  `json:"mode,omitempty"`
	Seed            *uint64  `json:"seed,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// Float64 returns a pointer to v, for building partial Settings.
func Float64(v float64) *float64 { return ptrFloat64(v) }

// String returns a pointer to v, for building partial Settings.
func String(v string) *string { return ptrString(v) }

// Uint64 returns a pointer to v, for building partial Settings.
func Uint64(v uint64) *uint64 { return ptrUint64(v) }

// DefaultSettings returns Settings with every field populated from the
// built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		GreenDuration:    ptrFloat64(defaultGreenMs),
		YellowDuration:   ptrFloat64(defaultYellowMs),
		RedDuration:      ptrFloat64(defaultRedMs),
		MinGreenTime:     ptrFloat64(defaultMinGreenMs),
		CarSpawnRate:     ptrFloat64(defaultSpawnRate),
		TurnRate:         ptrFloat64(defaultTurnRate),
		TruckFraction:    ptrFloat64(defaultTruckFraction),
		CarSpeed:         ptrFloat64(defaultCarSpeed),
		DetectorDistance: ptrFloat64(defaultDetectorDistance),
		PhysicsTimestep:  ptrFloat64(defaultTimestepMs),
		Mode:             ptrString(ModeFixed),
		Seed:             ptrUint64(0),
	}
}

const (
	defaultGreenMs          = 10000
	defaultYellowMs         = 3000
	defaultRedMs            = 2000
	defaultMinGreenMs       = 5000
	defaultSpawnRate        = 6
	defaultTurnRate         = 0.4
	defaultTruckFraction    = 0.1
	defaultCarSpeed         = 13.9
	defaultDetectorDistance = 60
	defaultTimestepMs       = 1000.0 / 60
	maxDetectorDistance     = 140
)

// LoadSettings loads Settings from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadSettings(path string) (*Settings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSettings(data)
}

// ParseSettings decodes and validates a Settings JSON document.
func ParseSettings(data []byte) (*Settings, error) {
	s := &Settings{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// MustLoadDefaultSettings loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents. Panics if the file cannot be
// loaded, intended for test setup.
func MustLoadDefaultSettings() *Settings {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if s, err := LoadSettings(path); err == nil {
			return s
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set fields hold physically sane values.
func (s *Settings) Validate() error {
	numeric := []struct {
		name string
		v    *float64
	}{
		{"green_duration", s.GreenDuration},
		{"yellow_duration", s.YellowDuration},
		{"red_duration", s.RedDuration},
		{"min_green_time", s.MinGreenTime},
		{"car_spawn_rate", s.CarSpawnRate},
		{"turn_rate", s.TurnRate},
		{"truck_fraction", s.TruckFraction},
		{"car_speed", s.CarSpeed},
		{"detector_distance", s.DetectorDistance},
		{"physics_timestep", s.PhysicsTimestep},
	}
	for _, f := range numeric {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return fmt.Errorf("%s must be finite, got %f", f.name, *f.v)
		}
	}

	positive := []struct {
		name string
		v    *float64
	}{
		{"green_duration", s.GreenDuration},
		{"yellow_duration", s.YellowDuration},
		{"car_speed", s.CarSpeed},
		{"physics_timestep", s.PhysicsTimestep},
	}
	for _, f := range positive {
		if f.v != nil && *f.v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", f.name, *f.v)
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"red_duration", s.RedDuration},
		{"min_green_time", s.MinGreenTime},
		{"car_spawn_rate", s.CarSpawnRate},
		{"detector_distance", s.DetectorDistance},
	}
	for _, f := range nonNegative {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	if s.DetectorDistance != nil && *s.DetectorDistance > maxDetectorDistance {
		return fmt.Errorf("detector_distance must be at most %d m, got %f", maxDetectorDistance, *s.DetectorDistance)
	}
	if s.TurnRate != nil && (*s.TurnRate < 0 || *s.TurnRate > 1) {
		return fmt.Errorf("turn_rate must be between 0 and 1, got %f", *s.TurnRate)
	}
	if s.TruckFraction != nil && (*s.TruckFraction < 0 || *s.TruckFraction > 1) {
		return fmt.Errorf("truck_fraction must be between 0 and 1, got %f", *s.TruckFraction)
	}
	if s.PhysicsTimestep != nil && *s.PhysicsTimestep > 100 {
		return fmt.Errorf("physics_timestep must be at most 100 ms, got %f", *s.PhysicsTimestep)
	}
	if s.Mode != nil && *s.Mode != ModeFixed && *s.Mode != ModeAdaptive {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeFixed, ModeAdaptive, *s.Mode)
	}
	return nil
}

// Merge returns a copy of s with every non-nil field of other applied on top.
func (s *Settings) Merge(other *Settings) *Settings {
	out := *s
	if other == nil {
		return &out
	}
	if other.GreenDuration != nil {
		out.GreenDuration = other.GreenDuration
	}
	if other.YellowDuration != nil {
		out.YellowDuration = other.YellowDuration
	}
	if other.RedDuration != nil {
		out.RedDuration = other.RedDuration
	}
	if other.MinGreenTime != nil {
		out.MinGreenTime = other.MinGreenTime
	}
	if other.CarSpawnRate != nil {
		out.CarSpawnRate = other.CarSpawnRate
	}
	if other.TurnRate != nil {
		out.TurnRate = other.TurnRate
	}
	if other.TruckFraction != nil {
		out.TruckFraction = other.TruckFraction
	}
	if other.CarSpeed != nil {
		out.CarSpeed = other.CarSpeed
	}
	if other.DetectorDistance != nil {
		out.DetectorDistance = other.DetectorDistance
	}
	if other.PhysicsTimestep != nil {
		out.PhysicsTimestep = other.PhysicsTimestep
	}
	if other.Mode != nil {
		out.Mode = other.Mode
	}
	if other.Seed != nil {
		out.Seed = other.Seed
	}
	return &out
}

// GetGreenDuration returns the green_duration value (ms) or the default.
func (s *Settings) GetGreenDuration() float64 {
	if s.GreenDuration == nil {
		return defaultGreenMs
	}
	return *s.GreenDuration
}

// GetYellowDuration returns the yellow_duration value (ms) or the default.
func (s *Settings) GetYellowDuration() float64 {
	if s.YellowDuration == nil {
		return defaultYellowMs
	}
	return *s.YellowDuration
}

// GetRedDuration returns the red_duration value (ms) or the default.
func (s *Settings) GetRedDuration() float64 {
	if s.RedDuration == nil {
		return defaultRedMs
	}
	return *s.RedDuration
}

// GetMinGreenTime returns the min_green_time value (ms) or the default.
func (s *Settings) GetMinGreenTime() float64 {
	if s.MinGreenTime == nil {
		return defaultMinGreenMs
	}
	return *s.MinGreenTime
}

// GetCarSpawnRate returns the car_spawn_rate value (veh/min) or the default.
func (s *Settings) GetCarSpawnRate() float64 {
	if s.CarSpawnRate == nil {
		return defaultSpawnRate
	}
	return *s.CarSpawnRate
}

// GetTurnRate returns the turn_rate value or the default.
func (s *Settings) GetTurnRate() float64 {
	if s.TurnRate == nil {
		return defaultTurnRate
	}
	return *s.TurnRate
}

// GetTruckFraction returns the truck_fraction value or the default.
func (s *Settings) GetTruckFraction() float64 {
	if s.TruckFraction == nil {
		return defaultTruckFraction
	}
	return *s.TruckFraction
}

// GetCarSpeed returns the car_speed value (m/s) or the default.
func (s *Settings) GetCarSpeed() float64 {
	if s.CarSpeed == nil {
		return defaultCarSpeed
	}
	return *s.CarSpeed
}

// GetDetectorDistance returns the detector_distance value (m) or the default.
func (s *Settings) GetDetectorDistance() float64 {
	if s.DetectorDistance == nil {
		return defaultDetectorDistance
	}
	return *s.DetectorDistance
}

// GetPhysicsTimestep returns the physics_timestep value (ms) or the default.
func (s *Settings) GetPhysicsTimestep() float64 {
	if s.PhysicsTimestep == nil {
		return defaultTimestepMs
	}
	return *s.PhysicsTimestep
}

// GetMode returns the signal control mode or the default (fixed).
func (s *Settings) GetMode() string {
	if s.Mode == nil || *s.Mode == "" {
		return ModeFixed
	}
	return *s.Mode
}

// GetSeed returns the random seed. Zero means "pick one at startup".
func (s *Settings) GetSeed() uint64 {
	if s.Seed == nil {
		return 0
	}
	return *s.Seed
}
