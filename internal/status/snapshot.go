// internal/status/snapshot.go
package status

import "math"

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health         uint16
	DutyCycle      uint16 // tenths of a percent
	MaxTemperature int16  // tenths of a degree
	Publishes      uint16
}

// FromControl builds a Snapshot from controller values.
// Out-of-range or non-finite inputs saturate.
func FromControl(maxTemperature, dutyCycle float64, faulted bool, publishes uint16) Snapshot {
	health := HealthOK
	if faulted {
		health = HealthFailSafe
	}

	return Snapshot{
		Health:         health,
		DutyCycle:      uint16(tenths(dutyCycle, 0, math.MaxUint16)),
		MaxTemperature: int16(tenths(maxTemperature, math.MinInt16, math.MaxInt16)),
		Publishes:      publishes,
	}
}

func tenths(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return hi
	case math.IsInf(v, 1):
		return hi
	case math.IsInf(v, -1):
		return lo
	}

	t := math.Round(v * 10)
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}
