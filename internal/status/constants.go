// internal/status/constants.go
package status

// Controller Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerController is the fixed number of logical slots per controller.
const SlotsPerController = 16

// ---- SLOT INDICES ----

// SlotHealthCode holds the controller health state.
const SlotHealthCode = 0

// SlotDutyCycle holds the last published duty cycle in tenths of a percent.
const SlotDutyCycle = 1

// SlotMaxTemperature holds the aggregated max temperature in tenths of a degree,
// two's complement.
const SlotMaxTemperature = 2

// SlotPublishes holds a rolling count of register publishes.
const SlotPublishes = 3

// ---- RESERVED RANGE ----

// Slots 4–7 are reserved for future use.
const SlotReservedStart = 4
const SlotReservedEnd = 7

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 8

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents the boot state, before the first publish.
const HealthUnknown uint16 = 0

// HealthOK means every sensor reported a usable reading.
const HealthOK uint16 = 1

// HealthFailSafe means at least one sensor is held at the fail-safe default.
const HealthFailSafe uint16 = 2
