// internal/duty/duty.go
package duty

import (
	"math"

	"github.com/tamzrod/fanctl/internal/snapshot"
)

// noise is the float error absorbed before rounding a pulse width up.
const noise = 1e-9

// DutyCycle maps the hottest observed temperature onto a duty-cycle percentage.
// Piecewise linear between LowCutoff and HighCutoff. Non-finite input is hot.
func DutyCycle(maxTemperature float64) float64 {
	t := snapshot.Sanitize(maxTemperature)

	switch {
	case t <= snapshot.LowCutoff:
		return snapshot.MinDutyCycle
	case t >= snapshot.HighCutoff:
		return snapshot.MaxDutyCycle
	}

	// Written as a single ratio so whole-degree inputs stay exact (60 -> 76, not 75.99..).
	span := snapshot.MaxDutyCycle - snapshot.MinDutyCycle
	return snapshot.MinDutyCycle + (t-snapshot.LowCutoff)*span/(snapshot.HighCutoff-snapshot.LowCutoff)
}

// Compute converts a temperature into one pulse width per fan.
// Rounding is always upward; each value is bounded by its capacity.
// No IO. No shared state.
func Compute(maxTemperature float64, capacities []uint32) snapshot.RegisterSnapshot {
	out := snapshot.NewRegisterSnapshot(len(capacities))
	pct := DutyCycle(maxTemperature)

	for i := 0; i < out.Len(); i++ {
		out.Values[i] = PulseWidth(pct, capacities[i])
	}
	return out
}

// PulseWidth returns ceil(pct/100 * capacity), clamped to capacity.
func PulseWidth(pct float64, capacity uint32) uint32 {
	raw := pct * float64(capacity) / 100

	v := math.Ceil(raw)
	if r := math.Round(raw); math.Abs(raw-r) < noise {
		v = r
	}

	if v <= 0 {
		return 0
	}
	if v >= float64(capacity) {
		return capacity
	}
	return uint32(v)
}
