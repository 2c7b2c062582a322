package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallbox-service/internal/logger"
	"wallbox-service/internal/pilot"
	"wallbox-service/internal/protocol"
	"wallbox-service/internal/types"
)

type fakeSender struct {
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(b []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, b)
	return nil
}

func newSim() (*Simulator, *fakeSender, *bytes.Buffer) {
	sender := &fakeSender{}
	out := &bytes.Buffer{}
	return NewSimulator(sender, out, logger.Nop()), sender, out
}

func wallboxCommand(enable, relay bool, demand uint16) []byte {
	env := protocol.NewCommandEnvelope()
	env.Command.Enable = enable
	env.Command.CurrentDemand = demand
	env.Hardware.MainContactor = relay
	return protocol.Encode(env)
}

func decodeState(t *testing.T, b []byte) *protocol.StateEnvelope {
	t.Helper()
	env, err := protocol.DecodeStateEnvelope(b)
	require.NoError(t, err)
	return env
}

func TestStateMessageDefaults(t *testing.T) {
	sim, _, _ := newSim()

	env := decodeState(t, sim.StateMessage())
	assert.Equal(t, protocol.SeCtrlState, env.State.Type)
	assert.Equal(t, types.StateIdle, env.State.State)
	assert.Equal(t, uint16(160), env.State.Current)
	assert.Equal(t, uint16(2300), env.Hardware.SourceVoltage)
	assert.False(t, env.Hardware.MainContactor)
	assert.False(t, env.Hardware.SourceEnable)
}

func TestContactorCommands(t *testing.T) {
	sim, sender, _ := newSim()

	assert.False(t, sim.Execute("on"))
	require.NoError(t, sim.SendState())
	env := decodeState(t, sender.sent[0])
	assert.True(t, env.Hardware.MainContactor)
	assert.True(t, env.Hardware.SourceEnable)

	sim.Execute("OFF")
	env = decodeState(t, sim.StateMessage())
	assert.False(t, env.Hardware.MainContactor)
}

func TestStateCommandsNeedEnabledWallbox(t *testing.T) {
	sim, _, out := newSim()

	sim.Execute("ready")
	assert.Contains(t, out.String(), "enable=false")
	assert.Equal(t, types.StateIdle, decodeState(t, sim.StateMessage()).State.State)

	sim.HandleDatagram(wallboxCommand(true, false, 10))
	out.Reset()
	sim.Execute("ready")
	assert.Contains(t, out.String(), "main contactor is OFF")
	assert.Equal(t, types.StateIdle, decodeState(t, sim.StateMessage()).State.State)

	sim.HandleDatagram(wallboxCommand(true, true, 10))
	for _, tc := range []struct {
		cmd  string
		want types.ChargingState
	}{
		{"ready", types.StateReady},
		{"charge", types.StateCharging},
		{"stop", types.StateStop},
		{" idle ", types.StateIdle},
	} {
		sim.Execute(tc.cmd)
		assert.Equal(t, tc.want, decodeState(t, sim.StateMessage()).State.State, tc.cmd)
	}
}

func TestHandleDatagramPrintsOnChange(t *testing.T) {
	sim, _, out := newSim()

	sim.HandleDatagram(wallboxCommand(true, true, 100))
	sim.HandleDatagram(wallboxCommand(true, true, 100))
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("[RX]")))
	assert.Contains(t, out.String(), "currentDemand=100")

	sim.HandleDatagram([]byte{0, 5})
	sim.HandleDatagram(peerState())
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("[RX]")), "non-command datagrams are ignored")

	out.Reset()
	sim.Execute("status")
	assert.Contains(t, out.String(), "relay=on demand=100")
}

func peerState() []byte {
	return protocol.Encode(protocol.NewStateEnvelope())
}

func TestPilotCommand(t *testing.T) {
	sim, sender, out := newSim()

	sim.Execute("cp b")
	require.Len(t, sender.sent, 1)
	assert.True(t, pilot.IsPilotMessage(sender.sent[0]))
	assert.Equal(t, []byte{pilot.MessageTag, byte(types.PilotB)}, sender.sent[0])

	sim.Execute("cp z")
	sim.Execute("cp")
	assert.Len(t, sender.sent, 1)
	assert.Contains(t, out.String(), `Unknown CP state "z"`)
	assert.Contains(t, out.String(), "Usage: cp")

	sender.err = errors.New("not connected")
	sim.Execute("cp f")
	assert.Contains(t, out.String(), "[ERR] not connected")
}

func TestQuitAndUnknown(t *testing.T) {
	sim, _, out := newSim()

	assert.False(t, sim.Execute(""))
	assert.False(t, sim.Execute("dance"))
	assert.Contains(t, out.String(), "Unknown command")
	assert.False(t, sim.Execute("help"))
	assert.Contains(t, out.String(), "charge  - Set charging state to CHARGING")
	assert.True(t, sim.Execute("quit"))
	assert.True(t, sim.Execute("exit"))
}
