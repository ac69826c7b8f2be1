// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/fanctl/internal/status"
)

// liveSlots are rewritten individually when they change.
var liveSlots = [...]struct {
	index int
	name  string
}{
	{status.SlotHealthCode, "health"},
	{status.SlotDutyCycle, "duty_cycle"},
	{status.SlotMaxTemperature, "max_temperature"},
	{status.SlotPublishes, "publishes"},
}

// controllerStatusWriter is the concrete StatusWriter used by the mirror.
type controllerStatusWriter struct {
	plan *StatusPlan
	cli  endpointClient

	needFull bool
	last     []uint16 // encoded live block as last delivered
}

// NewStatusWriter builds a status writer if status is enabled in plan.
// If plan.Status is nil, status is disabled.
func NewStatusWriter(plan Plan, cli endpointClient) (*controllerStatusWriter, bool) {
	if plan.Status == nil {
		return nil, false
	}

	return &controllerStatusWriter{
		plan:     plan.Status,
		cli:      cli,
		needFull: true, // full re-assert on first successful write
		last:     status.Encode(status.Snapshot{Health: status.HealthUnknown}),
	}, true
}

// WriteStatus delivers a controller status snapshot into status memory.
// On any write failure, the next successful call will re-assert the full block.
func (sw *controllerStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw == nil || sw.plan == nil {
		return errors.New("status writer: disabled")
	}
	if sw.cli == nil {
		return errors.New("status writer: missing client")
	}

	baseAddr := sw.baseAddr()
	unitID := sw.plan.UnitID
	regs := status.Encode(s)

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		block := status.EncodeBlock(s, sw.plan.DeviceName)

		if err := sw.cli.WriteRegisters(areaHoldingRegisters, unitID, baseAddr, block); err != nil {
			sw.needFull = true
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}

		sw.needFull = false
		sw.last = regs
		return nil
	}

	var errs []string

	for _, slot := range liveSlots {
		if sw.last[slot.index] == regs[slot.index] {
			continue
		}
		if err := sw.cli.WriteRegisters(
			areaHoldingRegisters,
			unitID,
			baseAddr+uint16(slot.index),
			[]uint16{regs[slot.index]},
		); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot.index, slot.name, err))
			continue
		}
		sw.last[slot.index] = regs[slot.index]
	}

	if len(errs) > 0 {
		// Any partial failure introduces doubt: re-assert on next success.
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}

	return nil
}

func (sw *controllerStatusWriter) baseAddr() uint16 {
	// Each controller owns a fixed SlotsPerController block.
	return sw.plan.BaseSlot * status.SlotsPerController
}
