// internal/writer/modbus/client.go
package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Mirror writes register blocks to one Modbus TCP server with FC16.
//
// The handler dials on first use. After a transport failure it is closed so
// the following write dials again; Modbus exception responses leave it open.
type Mirror struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// New prepares a Mirror for addr without connecting.
func New(addr string, timeout time.Duration) (*Mirror, error) {
	if addr == "" {
		return nil, errors.New("mirror modbus: address required")
	}

	handler := modbus.NewTCPClientHandler(addr)
	if timeout > 0 {
		handler.Timeout = timeout
	}
	return &Mirror{handler: handler, client: modbus.NewClient(handler)}, nil
}

// WriteRegisters ignores area: FC16 only reaches holding registers.
func (m *Mirror) WriteRegisters(_ byte, unitID uint8, addr uint16, regs []uint16) error {
	if len(regs) == 0 {
		return nil
	}

	buf := make([]byte, 0, 2*len(regs))
	for _, r := range regs {
		buf = binary.BigEndian.AppendUint16(buf, r)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler.SlaveId = unitID
	_, err := m.client.WriteMultipleRegisters(addr, uint16(len(regs)), buf)
	if err == nil {
		return nil
	}

	var exc *modbus.ModbusError
	if !errors.As(err, &exc) {
		_ = m.handler.Close()
	}
	return fmt.Errorf("mirror modbus: write %d@%d: %w", len(regs), addr, err)
}

// Close drops the connection if one is open.
func (m *Mirror) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler.Close()
}
