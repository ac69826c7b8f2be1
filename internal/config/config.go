// internal/config/config.go
package config

import "github.com/tamzrod/fanctl/internal/logging"

type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Logging    logging.Config   `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Mirror     MirrorConfig     `yaml:"mirror"`
	Panel      PanelConfig      `yaml:"panel"`
}

// ---- CONTROLLER ----

type ControllerConfig struct {
	SensorCount int         `yaml:"sensor_count" split_words:"true"`
	Fans        []FanConfig `yaml:"fans" ignored:"true"`
}

type FanConfig struct {
	Name   string `yaml:"name"`
	MaxPWM uint32 `yaml:"max_pwm"` // pulse-width capacity
}

// ---- CHANNELS ----

type ChannelsConfig struct {
	Dir       string `yaml:"dir"`       // shared memory directory; /dev/shm when empty
	Sensors   string `yaml:"sensors"`   // operator -> controller
	Registers string `yaml:"registers"` // controller -> operator
}

// ---- METRICS ----

type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// ---- MIRROR ----

// MirrorConfig copies every published register snapshot into an external
// register block. Disabled when Endpoint is empty.
type MirrorConfig struct {
	Protocol  string `yaml:"protocol"` // modbus | ingest
	Endpoint  string `yaml:"endpoint"`
	UnitID    uint8  `yaml:"unit_id" split_words:"true"`
	Address   uint16 `yaml:"address"`
	TimeoutMs int    `yaml:"timeout_ms" split_words:"true"`

	// Controller status block (optional, opt-in)
	StatusSlot *uint16 `yaml:"status_slot" split_words:"true"`
	DeviceName string  `yaml:"device_name" split_words:"true"`
}

// ---- PANEL ----

type PanelConfig struct {
	Source SourceConfig `yaml:"source"`
}

// SourceConfig is the Modbus device the panel polls for temperatures.
// Disabled when Endpoint is empty.
type SourceConfig struct {
	Endpoint   string  `yaml:"endpoint"`
	UnitID     uint8   `yaml:"unit_id" split_words:"true"`
	FC         uint8   `yaml:"fc"`
	Address    uint16  `yaml:"address"`
	Scale      float64 `yaml:"scale"` // degrees per register count
	IntervalMs int     `yaml:"interval_ms" split_words:"true"`
	TimeoutMs  int     `yaml:"timeout_ms" split_words:"true"`
}

// Capacities returns the per-fan pulse-width capacities in fan order.
func (c *Config) Capacities() []uint32 {
	out := make([]uint32, len(c.Controller.Fans))
	for i, f := range c.Controller.Fans {
		out[i] = f.MaxPWM
	}
	return out
}

// FanCount returns the configured number of fans.
func (c *Config) FanCount() int { return len(c.Controller.Fans) }

// MirrorEnabled reports whether register mirroring is configured.
func (c *Config) MirrorEnabled() bool { return c.Mirror.Endpoint != "" }

// SourceEnabled reports whether the panel polls a temperature source.
func (c *Config) SourceEnabled() bool { return c.Panel.Source.Endpoint != "" }
