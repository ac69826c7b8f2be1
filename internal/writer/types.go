// internal/writer/types.go
package writer

import (
	"github.com/tamzrod/fanctl/internal/snapshot"
	"github.com/tamzrod/fanctl/internal/status"
)

// Register areas understood by both transports.
const areaHoldingRegisters byte = 3

// StatusPlan places the controller status block on the mirror endpoint.
type StatusPlan struct {
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built mirror plan.
type Plan struct {
	Endpoint string
	UnitID   uint8
	Address  uint16 // first fan register
	Status   *StatusPlan
}

// Writer writes register snapshots into the mirror.
type Writer interface {
	Write(regs snapshot.RegisterSnapshot) error
}

// StatusWriter is the delivery-only contract for controller status.
// It receives a snapshot and writes it verbatim.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}
