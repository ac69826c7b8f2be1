package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/fanctl/internal/config"
	"github.com/tamzrod/fanctl/internal/shm"
	"github.com/tamzrod/fanctl/internal/snapshot"
)

func TestParseLine(t *testing.T) {
	id, v, err := parseLine("2  61.5")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, 61.5, v)

	for _, bad := range []string{"2", "2 3 4", "x 40", "1 hot"} {
		_, _, err := parseLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintRegisters(t *testing.T) {
	cfg := &config.Config{}
	cfg.Controller.Fans = []config.FanConfig{{Name: "cpu", MaxPWM: 200}, {MaxPWM: 150}}

	r := snapshot.NewRegisterSnapshot(2)
	r.Values[0], r.Values[1] = 152, 114

	var buf bytes.Buffer
	printRegisters(&buf, cfg, r)
	assert.Equal(t, "cpu=152  fan1=114\n", buf.String())
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fanpanel.yaml")
	doc := fmt.Sprintf(`
controller:
  sensor_count: 2
  fans:
    - max_pwm: 100
channels:
  dir: %s
logging:
  output_paths: [%s]
`, dir, filepath.Join(dir, "fanpanel.log"))
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestRun_StartupFailureReleasesOpenedChannels(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	other, err := shm.Open(context.Background(), shm.Options{
		Dir:      dir,
		Name:     config.DefaultRegistersChannel,
		Capacity: 1,
	}, [64]uint64{})
	require.NoError(t, err)
	defer other.Close()

	var out bytes.Buffer
	err = run(context.Background(), path, strings.NewReader(""), &out)
	require.ErrorIs(t, err, shm.ErrLayoutMismatch)

	_, err = os.Stat(filepath.Join(dir, config.DefaultSensorsChannel))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ReleasesChannelsOnShutdown(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, path, strings.NewReader(""), &out))

	for _, name := range []string{config.DefaultSensorsChannel, config.DefaultRegistersChannel} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}
}
