// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// Client abstracts Modbus operations needed by the poller.
// The poller depends on geometry only.
type Client interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)   // FC 4
}

// Factory opens a new Client. ONE attempt per call.
type Factory func() (Client, error)

// Config is the minimal runtime config the poller needs.
type Config struct {
	Name     string
	Interval time.Duration
	Read     ReadBlock
	Scale    float64 // degrees per count of a signed register
}

// Poller is a dumb, clock-driven reader.
// After a transport failure the client is discarded and the factory is
// tried again on the next tick. No retries within a tick.
type Poller struct {
	cfg     Config
	client  Client
	factory Factory
}

// New creates a poller with immutable config.
// client may be nil when factory is set; it is opened on the first poll.
func New(cfg Config, client Client, factory Factory) (*Poller, error) {
	if cfg.Name == "" {
		return nil, errors.New("poller: name required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	if cfg.Read.Quantity == 0 {
		return nil, errors.New("poller: quantity must be > 0")
	}
	if cfg.Read.FC != 3 && cfg.Read.FC != 4 {
		return nil, fmt.Errorf("poller: unsupported function code %d", cfg.Read.FC)
	}
	if client == nil && factory == nil {
		return nil, errors.New("poller: client or factory required")
	}
	return &Poller{cfg: cfg, client: client, factory: factory}, nil
}

// PollOnce performs exactly one poll cycle.
// All-or-nothing: any failure yields a fully faulted result.
func (p *Poller) PollOnce() PollResult {
	res := PollResult{At: time.Now()}

	regs, err := p.read()
	if err != nil {
		res.Err = err
		res.Temperatures = faulted(int(p.cfg.Read.Quantity))
		return res
	}
	if len(regs) != int(p.cfg.Read.Quantity) {
		res.Err = fmt.Errorf("poller: short read: got %d registers, want %d", len(regs), p.cfg.Read.Quantity)
		res.Temperatures = faulted(int(p.cfg.Read.Quantity))
		return res
	}

	res.Registers = regs
	res.Temperatures = make([]float64, len(regs))
	for i, r := range regs {
		res.Temperatures[i] = float64(int16(r)) * p.cfg.Scale
	}
	return res
}

func (p *Poller) read() ([]uint16, error) {
	if p.client == nil {
		if p.factory == nil {
			return nil, errors.New("poller: no client")
		}
		c, err := p.factory()
		if err != nil {
			return nil, fmt.Errorf("poller: connect: %w", err)
		}
		p.client = c
	}

	rb := p.cfg.Read

	var (
		regs []uint16
		err  error
	)
	switch rb.FC {
	case 3:
		regs, err = p.client.ReadHoldingRegisters(rb.Address, rb.Quantity)
	case 4:
		regs, err = p.client.ReadInputRegisters(rb.Address, rb.Quantity)
	}

	if err != nil && p.factory != nil {
		// Discard the client; the next tick dials again.
		if c, ok := p.client.(io.Closer); ok {
			_ = c.Close()
		}
		p.client = nil
	}
	return regs, err
}

// Close releases the current client, if any.
func (p *Poller) Close() error {
	if c, ok := p.client.(io.Closer); ok {
		p.client = nil
		return c.Close()
	}
	return nil
}

func faulted(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
