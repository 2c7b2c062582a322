package hardware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallbox-service/internal/config"
	"wallbox-service/internal/logger"
)

func TestStubOutputs(t *testing.T) {
	io := NewStubHardwareIO(logger.Nop())
	require.NoError(t, io.Initialize())

	require.NoError(t, io.WriteDigitalOutput(LineRelay, true))
	assert.True(t, io.Output(LineRelay))

	assert.Error(t, io.WriteDigitalOutput("horn", true))

	io.Cleanup()
	assert.False(t, io.Output(LineRelay), "cleanup de-energizes the relay")
}

func TestStubInputCallbackFiresOnChange(t *testing.T) {
	io := NewStubHardwareIO(logger.Nop())

	var calls []bool
	io.RegisterInputCallback(LineButton, func(channel string, value bool) error {
		assert.Equal(t, LineButton, channel)
		calls = append(calls, value)
		return nil
	})

	require.NoError(t, io.SetInput(LineButton, true))
	require.NoError(t, io.SetInput(LineButton, true))
	require.NoError(t, io.SetInput(LineButton, false))
	assert.Equal(t, []bool{true, false}, calls)

	v, err := io.ReadDigitalInput(LineButton)
	require.NoError(t, err)
	assert.False(t, v)
}

func TestStubCallbackError(t *testing.T) {
	io := NewStubHardwareIO(logger.Nop())
	boom := errors.New("boom")
	io.RegisterInputCallback(LineButton, func(string, bool) error { return boom })
	assert.ErrorIs(t, io.SetInput(LineButton, true), boom)
}

func TestStubPilotIdlesHigh(t *testing.T) {
	io := NewStubHardwareIO(logger.Nop())
	v, err := io.ReadDigitalInput(LinePilot)
	require.NoError(t, err)
	assert.True(t, v)

	_, err = io.ReadDigitalInput("unknown")
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	io, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &StubHardwareIO{}, io)

	cfg.Hardware.Driver = config.DriverGpiocdev
	io, err = New(cfg, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &LinuxHardwareIO{}, io)

	cfg.Hardware.Driver = "sysfs"
	_, err = New(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestPinsFromConfig(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	pins := PinsFromConfig(cfg)
	assert.Equal(t, "gpiochip0", pins.Chip)
	assert.Equal(t, 21, pins.Offsets[LineRelay])
	assert.Equal(t, 24, pins.Offsets[LinePilot])
	assert.Len(t, pins.Offsets, len(Outputs)+len(Inputs))
}
