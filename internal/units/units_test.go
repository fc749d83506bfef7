package units

import (
	"math"
	"testing"
	"time"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit string
		want bool
	}{
		{MPS, true},
		{MPH, true},
		{KMPH, true},
		{KPH, true},
		{"furlongs", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.want {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.want)
		}
	}
}

func TestConvertSpeed(t *testing.T) {
	tests := []struct {
		name  string
		mps   float64
		units string
		want  float64
	}{
		{"mps passthrough", 10, MPS, 10},
		{"mph", 10, MPH, 22.369362920544},
		{"kmph", 10, KMPH, 36},
		{"kph alias", 10, KPH, 36},
		{"unknown defaults to mps", 10, "knots", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertSpeed(tt.mps, tt.units); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConvertSpeed(%v, %q) = %v, want %v", tt.mps, tt.units, got, tt.want)
			}
		})
	}
}

func TestRateAndTimeConversions(t *testing.T) {
	if got := MillisToSeconds(3000); got != 3 {
		t.Errorf("MillisToSeconds(3000) = %v, want 3", got)
	}
	if got := DurationSeconds(1500 * time.Millisecond); got != 1.5 {
		t.Errorf("DurationSeconds(1.5s) = %v", got)
	}
	if got := PerMinuteToPerHour(10); got != 600 {
		t.Errorf("PerMinuteToPerHour(10) = %v, want 600", got)
	}
}

func TestDensityAndFlow(t *testing.T) {
	if got := DensityPerKm(6, 300); got != 20 {
		t.Errorf("DensityPerKm(6, 300) = %v, want 20", got)
	}
	if got := DensityPerKm(6, 0); got != 0 {
		t.Errorf("DensityPerKm with zero length = %v, want 0", got)
	}
	// 20 veh/km at 10 m/s (36 km/h) is 720 veh/h
	if got := FlowPerHour(20, 10); math.Abs(got-720) > 1e-9 {
		t.Errorf("FlowPerHour(20, 10) = %v, want 720", got)
	}
}
