// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"math"

	"github.com/tamzrod/fanctl/internal/snapshot"
	"github.com/tamzrod/fanctl/internal/status"
)

// endpointClient is the exact contract the writer uses.
// IMPORTANT: There must be NO other version of this interface anywhere.
type endpointClient interface {
	WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error
}

type registerWriter struct {
	plan Plan
	cli  endpointClient
}

// New returns a Writer delivering fan registers through cli.
func New(plan Plan, cli endpointClient) Writer {
	return &registerWriter{
		plan: plan,
		cli:  cli,
	}
}

// Write copies every fan value into consecutive holding registers at plan.Address.
// Values above 65535 saturate; config validation rejects such capacities.
func (w *registerWriter) Write(regs snapshot.RegisterSnapshot) error {
	if w.cli == nil {
		return fmt.Errorf("writer: missing client for endpoint %s", w.plan.Endpoint)
	}

	values := regs.Slice()
	if len(values) == 0 {
		return nil
	}

	out := make([]uint16, len(values))
	for i, v := range values {
		if v > math.MaxUint16 {
			v = math.MaxUint16
		}
		out[i] = uint16(v)
	}

	if err := w.cli.WriteRegisters(areaHoldingRegisters, w.plan.UnitID, w.plan.Address, out); err != nil {
		return fmt.Errorf(
			"writer: ep=%s unit=%d addr=%d qty=%d err=%w",
			w.plan.Endpoint, w.plan.UnitID, w.plan.Address, len(out), err,
		)
	}
	return nil
}

// Mirror delivers each publish into the external register block,
// followed by the controller status block when enabled.
type Mirror struct {
	data   Writer
	status StatusWriter // nil when disabled
}

// NewMirror assembles a Mirror from a plan and one endpoint client.
func NewMirror(plan Plan, cli endpointClient) *Mirror {
	m := &Mirror{data: New(plan, cli)}
	if sw, ok := NewStatusWriter(plan, cli); ok {
		m.status = sw
	}
	return m
}

// Publish writes regs and then st. Both are attempted; errors are joined.
func (m *Mirror) Publish(regs snapshot.RegisterSnapshot, st status.Snapshot) error {
	if m == nil {
		return nil
	}

	err := m.data.Write(regs)
	if m.status != nil {
		err = errors.Join(err, m.status.WriteStatus(st))
	}
	return err
}

// StatusEnabled reports whether a status block is written.
func (m *Mirror) StatusEnabled() bool {
	return m != nil && m.status != nil
}
