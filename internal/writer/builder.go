// internal/writer/builder.go
package writer

import (
	"errors"
	"fmt"
	"time"

	cfg "github.com/tamzrod/fanctl/internal/config"
	"github.com/tamzrod/fanctl/internal/writer/ingest"
	wmodbus "github.com/tamzrod/fanctl/internal/writer/modbus"
)

// BuildPlan converts the mirror section into a Plan.
// Assumes config has already passed validation and normalization.
func BuildPlan(c *cfg.Config) (Plan, error) {
	m := c.Mirror
	if m.Endpoint == "" {
		return Plan{}, errors.New("writer: mirror.endpoint required")
	}

	plan := Plan{
		Endpoint: m.Endpoint,
		UnitID:   m.UnitID,
		Address:  m.Address,
	}

	if m.StatusSlot != nil {
		plan.Status = &StatusPlan{
			UnitID:     m.UnitID,
			BaseSlot:   *m.StatusSlot,
			DeviceName: m.DeviceName,
		}
	}

	return plan, nil
}

// BuildMirror creates the mirror and its endpoint client.
// It returns a nil Mirror and a no-op closer when mirroring is disabled.
func BuildMirror(c *cfg.Config) (*Mirror, func() error, error) {
	noop := func() error { return nil }

	if !c.MirrorEnabled() {
		return nil, noop, nil
	}

	plan, err := BuildPlan(c)
	if err != nil {
		return nil, noop, err
	}

	timeout := time.Duration(c.Mirror.TimeoutMs) * time.Millisecond

	var (
		cli     endpointClient
		closeFn func() error
	)

	switch c.Mirror.Protocol {
	case cfg.ProtocolModbus, "":
		mc, err := wmodbus.New(plan.Endpoint, timeout)
		if err != nil {
			return nil, noop, err
		}
		cli, closeFn = mc, mc.Close

	case cfg.ProtocolIngest:
		ic, err := ingest.NewSender(plan.Endpoint, timeout)
		if err != nil {
			return nil, noop, err
		}
		cli, closeFn = ic, ic.Close

	default:
		return nil, noop, fmt.Errorf("writer: unsupported protocol %q", c.Mirror.Protocol)
	}

	return NewMirror(plan, cli), closeFn, nil
}
