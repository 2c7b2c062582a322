package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallbox.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, DriverStub, cfg.Hardware.Driver)
	assert.Equal(t, 21, cfg.Hardware.Relay)
	assert.Equal(t, PilotPolling, cfg.Pilot.Source)
	assert.Equal(t, 100*time.Millisecond, cfg.Pilot.Interval)
	assert.Equal(t, 100*time.Millisecond, cfg.Controller.TickInterval)
	assert.Equal(t, 2*time.Second, cfg.Controller.PeerTimeout)
	assert.True(t, cfg.Controller.StartEnabled)
	assert.Equal(t, 16, cfg.Controller.MaxCurrentAmps)
	assert.Equal(t, "0.0.0.0:50010", cfg.Network.ListenAddr)
	assert.Equal(t, "127.0.0.1:50011", cfg.Network.PeerAddr)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
mode: production
hardware:
  chip: gpiochip1
  relay: 5
pilot:
  source: remote
  interval: 250ms
network:
  peer_addr: 10.0.0.2:6000
controller:
  peer_timeout: 5s
redis:
  enabled: true
  addr: redis:6379
metrics:
  addr: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, DriverGpiocdev, cfg.Hardware.Driver, "production selects real GPIO")
	assert.Equal(t, "gpiochip1", cfg.Hardware.Chip)
	assert.Equal(t, 5, cfg.Hardware.Relay)
	assert.Equal(t, PilotRemote, cfg.Pilot.Source)
	assert.Equal(t, 250*time.Millisecond, cfg.Pilot.Interval)
	assert.Equal(t, "10.0.0.2:6000", cfg.Network.PeerAddr)
	assert.Equal(t, 5*time.Second, cfg.Controller.PeerTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "hardware:\n  relay: 5\n")
	t.Setenv("WALLBOX_PIN_RELAY", "6")
	t.Setenv("WALLBOX_GPIO_DRIVER", "stub")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Hardware.Relay)
	assert.Equal(t, DriverStub, cfg.Hardware.Driver)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	bad := *cfg
	bad.Mode = "lab"
	assert.ErrorContains(t, bad.Validate(), "invalid mode")

	bad = *cfg
	bad.Pilot.Source = "laser"
	assert.ErrorContains(t, bad.Validate(), "invalid pilot source")

	bad = *cfg
	bad.Hardware.LedRed = bad.Hardware.Relay
	assert.ErrorContains(t, bad.Validate(), "assigned to both")

	bad = *cfg
	bad.Controller.TickInterval = 0
	assert.ErrorContains(t, bad.Validate(), "tick interval")

	bad = *cfg
	bad.Controller.PeerTimeout = -time.Second
	assert.ErrorContains(t, bad.Validate(), "peer timeout")

	bad = *cfg
	bad.Controller.MaxCurrentAmps = 100
	assert.ErrorContains(t, bad.Validate(), "max current")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestUsageMentionsVariables(t *testing.T) {
	assert.Contains(t, Usage(), "WALLBOX_MODE")
}
