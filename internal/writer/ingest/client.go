// internal/writer/ingest/client.go
package ingest

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"
)

// Frame header, big-endian:
//
//	[0:2]  'R' 'I'
//	[2]    version
//	[3]    register area
//	[4:6]  unit id
//	[6:8]  start address
//	[8:10] register count
//
// followed by count registers. The peer replies with one ack byte.
const (
	frameHeader  = 10
	frameVersion = 1

	ackAccepted = 0x00
	ackRefused  = 0x01
)

var frameMagic = [2]byte{'R', 'I'}

// ErrRejected is returned when the peer refuses a frame.
var ErrRejected = errors.New("ingest: frame rejected")

const fallbackTimeout = 2 * time.Second

// Sender delivers register blocks over short-lived TCP connections.
// Each frame gets its own connection; nothing is kept open between writes.
type Sender struct {
	addr    string
	timeout time.Duration
	dial    func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewSender returns a Sender for addr. A non-positive timeout selects a default.
func NewSender(addr string, timeout time.Duration) (*Sender, error) {
	if addr == "" {
		return nil, errors.New("ingest: address required")
	}
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	return &Sender{addr: addr, timeout: timeout, dial: net.DialTimeout}, nil
}

// Close exists for symmetry with the Modbus transport.
func (s *Sender) Close() error { return nil }

// WriteRegisters sends one frame and waits for its ack.
func (s *Sender) WriteRegisters(area byte, unitID uint8, addr uint16, regs []uint16) error {
	conn, err := s.dial("tcp", s.addr, s.timeout)
	if err != nil {
		return fmt.Errorf("ingest: connect %s: %w", s.addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		return fmt.Errorf("ingest: deadline: %w", err)
	}

	if _, err := conn.Write(Encode(area, unitID, addr, regs)); err != nil {
		return fmt.Errorf("ingest: send: %w", err)
	}

	ack, err := bufio.NewReader(conn).ReadByte()
	if err != nil {
		return fmt.Errorf("ingest: ack: %w", err)
	}

	switch ack {
	case ackAccepted:
		return nil
	case ackRefused:
		return ErrRejected
	}
	return fmt.Errorf("ingest: unexpected ack %#02x", ack)
}

// Encode lays out one frame.
func Encode(area byte, unitID uint8, addr uint16, regs []uint16) []byte {
	buf := make([]byte, 0, frameHeader+2*len(regs))
	buf = append(buf, frameMagic[0], frameMagic[1], frameVersion, area)
	buf = binary.BigEndian.AppendUint16(buf, uint16(unitID))
	buf = binary.BigEndian.AppendUint16(buf, addr)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(regs)))
	for _, r := range regs {
		buf = binary.BigEndian.AppendUint16(buf, r)
	}
	return buf
}
