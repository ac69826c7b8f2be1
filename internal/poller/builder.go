// internal/poller/builder.go
package poller

import (
	"time"

	cfg "github.com/tamzrod/fanctl/internal/config"
	pmodbus "github.com/tamzrod/fanctl/internal/poller/modbus"
)

// Build constructs a Poller for panel.source and wires Modbus client lifecycle.
// Connection is reused while healthy.
// On transport death, Poller discards the client and uses factory on a future tick.
// Assumes config has already passed validation and normalization.
func Build(c *cfg.Config) (*Poller, func() error, error) {
	s := c.Panel.Source

	// client factory: ONE attempt per call
	factory := func() (Client, error) {
		return pmodbus.New(pmodbus.Config{
			Endpoint: s.Endpoint,
			UnitID:   s.UnitID,
			Timeout:  time.Duration(s.TimeoutMs) * time.Millisecond,
		})
	}

	// initial client (fail fast at startup)
	client, err := factory()
	if err != nil {
		return nil, nil, err
	}

	p, err := New(
		Config{
			Name:     s.Endpoint,
			Interval: time.Duration(s.IntervalMs) * time.Millisecond,
			Read: ReadBlock{
				FC:       s.FC,
				Address:  s.Address,
				Quantity: uint16(c.Controller.SensorCount),
			},
			Scale: s.Scale,
		},
		client,
		factory,
	)
	if err != nil {
		if cl, ok := client.(interface{ Close() error }); ok {
			_ = cl.Close()
		}
		return nil, nil, err
	}

	return p, p.Close, nil
}
