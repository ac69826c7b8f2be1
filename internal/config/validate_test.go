// internal/config/validate_test.go
package config

import (
	"strings"
	"testing"
)

// helper to build a valid config quickly
func base(sensors int, caps ...uint32) *Config {
	cfg := &Config{
		Controller: ControllerConfig{SensorCount: sensors},
	}
	for _, c := range caps {
		cfg.Controller.Fans = append(cfg.Controller.Fans, FanConfig{MaxPWM: c})
	}
	return cfg
}

func slot(v uint16) *uint16 { return &v }

// ---- tests ----

func TestValidate_Minimal(t *testing.T) {
	if err := Validate(base(3, 200, 150)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Counts(t *testing.T) {
	cases := []struct {
		name string
		cfg  *Config
	}{
		{"no sensors", base(0, 200)},
		{"too many sensors", base(9, 200)},
		{"no fans", base(3)},
		{"too many fans", base(3, 1, 1, 1, 1, 1, 1, 1, 1, 1)},
	}

	for _, tc := range cases {
		if err := Validate(tc.cfg); err == nil {
			t.Fatalf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestValidate_DuplicateFanName(t *testing.T) {
	cfg := base(1, 100, 100)
	cfg.Controller.Fans[0].Name = "cpu"
	cfg.Controller.Fans[1].Name = "cpu"

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected duplicate name error, got nil")
	}
}

func TestValidate_ChannelNames(t *testing.T) {
	cfg := base(1, 100)
	cfg.Channels.Sensors = "a/b"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected invalid name error, got nil")
	}

	cfg = base(1, 100)
	cfg.Channels.Sensors = DefaultRegistersChannel
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected shared name error, got nil")
	}
}

func TestValidate_StatusSlotRequiresMirror(t *testing.T) {
	cfg := base(1, 100)
	cfg.Mirror.StatusSlot = slot(1)

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error, got nil")
	}
}

func TestValidate_MirrorPWMRange(t *testing.T) {
	cfg := base(1, 70000)
	if err := Validate(cfg); err != nil {
		t.Fatalf("unmirrored capacity should be accepted: %v", err)
	}

	cfg.Mirror.Endpoint = "127.0.0.1:502"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected max_pwm range error, got nil")
	}
}

func TestValidate_MirrorProtocol(t *testing.T) {
	cfg := base(1, 100)
	cfg.Mirror.Endpoint = "127.0.0.1:502"
	cfg.Mirror.Protocol = "carrier-pigeon"

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected protocol error, got nil")
	}
}

func TestValidate_StatusBlockTouchingAllowed(t *testing.T) {
	cfg := base(1, 100, 100)
	cfg.Mirror.Endpoint = "127.0.0.1:502"
	cfg.Mirror.Address = 14         // 14–15
	cfg.Mirror.StatusSlot = slot(1) // 16–31

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_StatusBlockOverlapDetected(t *testing.T) {
	cfg := base(1, 100, 100)
	cfg.Mirror.Endpoint = "127.0.0.1:502"
	cfg.Mirror.Address = 15         // 15–16
	cfg.Mirror.StatusSlot = slot(1) // 16–31 → overlap

	err := Validate(cfg)
	if err == nil {
		t.Fatalf("expected overlap error, got nil")
	}
	if !strings.Contains(err.Error(), "overlap") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DeviceNameASCII(t *testing.T) {
	cfg := base(1, 100)
	cfg.Mirror.DeviceName = "lüfter"

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected ASCII error, got nil")
	}
}

func TestValidate_SourceFC(t *testing.T) {
	cfg := base(2, 100)
	cfg.Panel.Source.Endpoint = "127.0.0.1:502"
	cfg.Panel.Source.FC = 1

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected fc error, got nil")
	}

	cfg.Panel.Source.FC = 4
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_SourceAddressFits(t *testing.T) {
	cfg := base(2, 100)
	cfg.Panel.Source.Endpoint = "127.0.0.1:502"
	cfg.Panel.Source.Address = 65535

	if err := Validate(cfg); err == nil {
		t.Fatalf("expected address range error, got nil")
	}
}
