// internal/poller/types.go
package poller

import "time"

// ReadBlock describes one Modbus read geometry.
// Geometry only: no semantics.
type ReadBlock struct {
	FC       uint8
	Address  uint16
	Quantity uint16
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	At time.Time

	// Registers are the raw words, nil when the cycle failed.
	Registers []uint16

	// Temperatures holds one value per polled sensor in sensor order.
	// On failure every entry is NaN so downstream treats it as a fault.
	Temperatures []float64

	Err error // non-nil means the poll cycle failed
}
