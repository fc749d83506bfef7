// Package units provides shared constants and conversions for speeds, rates
// and durations crossing the engine boundary.
package units

import "time"

// Speed unit constants
const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, mph, kmph, kph"
}

// ConvertSpeed converts a speed from meters per second to the target units.
// The engine works in m/s throughout.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// MillisToSeconds converts a boundary duration in milliseconds to seconds.
func MillisToSeconds(ms float64) float64 {
	return ms / 1000
}

// DurationSeconds converts a time.Duration to float seconds.
func DurationSeconds(d time.Duration) float64 {
	return d.Seconds()
}

// PerMinuteToPerHour converts a vehicles/minute rate to vehicles/hour.
func PerMinuteToPerHour(perMinute float64) float64 {
	return perMinute * 60
}

// DensityPerKm returns vehicles per kilometre for count vehicles on lengthM metres.
func DensityPerKm(count int, lengthM float64) float64 {
	if lengthM <= 0 {
		return 0
	}
	return float64(count) / (lengthM / 1000)
}

// FlowPerHour returns the hydrodynamic flow q = k*v in vehicles/hour for a
// density in vehicles/km and a speed in m/s.
func FlowPerHour(densityPerKm, speedMPS float64) float64 {
	return densityPerKm * speedMPS * 3.6
}
