// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tamzrod/fanctl/internal/snapshot"
	"github.com/tamzrod/fanctl/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}

	// ------------------------------------------------------------
	// CONTROLLER GEOMETRY
	// ------------------------------------------------------------

	c := cfg.Controller

	if c.SensorCount < 1 || c.SensorCount > snapshot.MaxSensors {
		return fmt.Errorf(
			"controller.sensor_count %d out of range 1..%d",
			c.SensorCount,
			snapshot.MaxSensors,
		)
	}

	if len(c.Fans) < 1 || len(c.Fans) > snapshot.MaxFans {
		return fmt.Errorf(
			"controller.fans: %d fans configured, want 1..%d",
			len(c.Fans),
			snapshot.MaxFans,
		)
	}

	names := make(map[string]int)
	for i, f := range c.Fans {
		if f.Name == "" {
			continue
		}
		if prev, exists := names[f.Name]; exists {
			return fmt.Errorf("controller.fans: name %q used by fans %d and %d", f.Name, prev, i)
		}
		names[f.Name] = i
	}

	// ------------------------------------------------------------
	// CHANNEL NAMES
	// ------------------------------------------------------------

	sensors, registers := channelNames(cfg.Channels)
	for _, n := range []string{sensors, registers} {
		if strings.ContainsRune(n, '/') || n == "." || n == ".." {
			return fmt.Errorf("channels: invalid object name %q", n)
		}
	}
	if sensors == registers {
		return fmt.Errorf("channels: sensors and registers share the name %q", sensors)
	}

	// ------------------------------------------------------------
	// MIRROR (OPT-IN)
	// ------------------------------------------------------------

	if err := validateMirror(cfg); err != nil {
		return err
	}

	// ------------------------------------------------------------
	// PANEL SOURCE (OPT-IN)
	// ------------------------------------------------------------

	return validateSource(cfg)
}

func validateMirror(cfg *Config) error {
	m := cfg.Mirror

	// device_name sanity (ASCII only), checked even when disabled
	for i := 0; i < len(m.DeviceName); i++ {
		if m.DeviceName[i] > 0x7F {
			return errors.New("mirror.device_name must contain ASCII characters only")
		}
	}

	if !cfg.MirrorEnabled() {
		if m.StatusSlot != nil {
			return errors.New("mirror.status_slot is set but mirror.endpoint is empty")
		}
		return nil
	}

	switch m.Protocol {
	case "", ProtocolModbus, ProtocolIngest:
	default:
		return fmt.Errorf("mirror.protocol %q: want %q or %q", m.Protocol, ProtocolModbus, ProtocolIngest)
	}

	if m.TimeoutMs < 0 {
		return fmt.Errorf("mirror.timeout_ms %d must not be negative", m.TimeoutMs)
	}

	// registers are 16-bit on the wire
	for i, f := range cfg.Controller.Fans {
		if f.MaxPWM > math.MaxUint16 {
			return fmt.Errorf(
				"controller.fans[%d]: max_pwm %d exceeds %d and cannot be mirrored",
				i,
				f.MaxPWM,
				math.MaxUint16,
			)
		}
	}

	start := uint32(m.Address)
	end := start + uint32(cfg.FanCount()) - 1
	if end > math.MaxUint16 {
		return fmt.Errorf("mirror.address %d: %d fan registers do not fit", m.Address, cfg.FanCount())
	}

	if m.StatusSlot == nil {
		return nil
	}

	sStart := uint32(*m.StatusSlot) * status.SlotsPerController
	sEnd := sStart + status.SlotsPerController - 1
	if sEnd > math.MaxUint16 {
		return fmt.Errorf("mirror.status_slot %d: block does not fit the register space", *m.StatusSlot)
	}

	// overlap check (inclusive)
	if !(end < sStart || start > sEnd) {
		return fmt.Errorf(
			"mirror overlap: fan registers %d-%d overlap status block %d-%d",
			start,
			end,
			sStart,
			sEnd,
		)
	}

	return nil
}

func validateSource(cfg *Config) error {
	if !cfg.SourceEnabled() {
		return nil
	}

	s := cfg.Panel.Source

	switch s.FC {
	case 0, 3, 4:
	default:
		return fmt.Errorf("panel.source.fc %d: want 3 or 4", s.FC)
	}

	if uint32(s.Address)+uint32(cfg.Controller.SensorCount)-1 > math.MaxUint16 {
		return fmt.Errorf("panel.source.address %d: %d sensor registers do not fit", s.Address, cfg.Controller.SensorCount)
	}

	if math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
		return fmt.Errorf("panel.source.scale must be finite")
	}
	if s.IntervalMs < 0 || s.TimeoutMs < 0 {
		return errors.New("panel.source: interval_ms and timeout_ms must not be negative")
	}

	return nil
}
