// internal/config/normalize.go
package config

import (
	"fmt"

	"github.com/tamzrod/fanctl/internal/status"
)

// Mirror protocols.
const (
	ProtocolModbus = "modbus"
	ProtocolIngest = "ingest"
)

// Defaults applied by Normalize.
const (
	DefaultSensorsChannel   = "fanctl.sensors"
	DefaultRegistersChannel = "fanctl.registers"

	DefaultTimeoutMs  = 1000
	DefaultIntervalMs = 1000
	DefaultScale      = 0.1
	DefaultSourceFC   = 3
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Channels.Sensors, cfg.Channels.Registers = channelNames(cfg.Channels)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	for i := range cfg.Controller.Fans {
		f := &cfg.Controller.Fans[i]
		if f.Name == "" {
			f.Name = fmt.Sprintf("fan%d", i)
		}
	}

	// ------------------------------------------------------------
	// MIRROR
	// ------------------------------------------------------------

	if cfg.MirrorEnabled() {
		if cfg.Mirror.Protocol == "" {
			cfg.Mirror.Protocol = ProtocolModbus
		}
		if cfg.Mirror.TimeoutMs == 0 {
			cfg.Mirror.TimeoutMs = DefaultTimeoutMs
		}
	}

	// Truncate device_name (ASCII already validated)
	if len(cfg.Mirror.DeviceName) > status.DeviceNameMaxChars {
		cfg.Mirror.DeviceName = cfg.Mirror.DeviceName[:status.DeviceNameMaxChars]
	}

	// ------------------------------------------------------------
	// PANEL SOURCE
	// ------------------------------------------------------------

	if cfg.SourceEnabled() {
		s := &cfg.Panel.Source
		if s.FC == 0 {
			s.FC = DefaultSourceFC
		}
		if s.Scale == 0 {
			s.Scale = DefaultScale
		}
		if s.IntervalMs == 0 {
			s.IntervalMs = DefaultIntervalMs
		}
		if s.TimeoutMs == 0 {
			s.TimeoutMs = DefaultTimeoutMs
		}
	}
}

func channelNames(c ChannelsConfig) (sensors, registers string) {
	sensors, registers = c.Sensors, c.Registers
	if sensors == "" {
		sensors = DefaultSensorsChannel
	}
	if registers == "" {
		registers = DefaultRegistersChannel
	}
	return sensors, registers
}
