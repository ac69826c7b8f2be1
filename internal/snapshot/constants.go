// internal/snapshot/constants.go
package snapshot

// Payload geometry.
// Both processes must be built with the same values: they define the
// shared memory layout and MUST NOT be configurable at runtime.

// MaxSensors is the number of sensor slots carried by every SensorSnapshot.
const MaxSensors = 8

// MaxFans is the number of register slots carried by every RegisterSnapshot.
const MaxFans = 8

// ---- TEMPERATURE CUTOFFS (degrees C) ----

// LowCutoff is the temperature at or below which fans run at MinDutyCycle.
const LowCutoff = 25.0

// HighCutoff is the temperature at or above which fans run at MaxDutyCycle.
const HighCutoff = 75.0

// DefaultTemperature is assumed for a sensor that never reported or reported
// a non-finite value. Equal to HighCutoff: unknown means hot.
const DefaultTemperature = HighCutoff

// ---- DUTY CYCLE (percent) ----

// MinDutyCycle applies at or below LowCutoff.
const MinDutyCycle = 20.0

// MaxDutyCycle applies at or above HighCutoff.
const MaxDutyCycle = 100.0
