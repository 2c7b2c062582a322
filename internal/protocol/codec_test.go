package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallbox-service/internal/types"
)

func sampleState() State {
	return State{
		Version:        Version,
		Type:           CtrlState,
		State:          types.StateCharging,
		Phases:         types.PhasesAC1,
		Current:        163,
		Voltage:        2301,
		EquipmentID:    [7]byte{'D', 'E', '1', '2', '3', '4', '5'},
		VehicleID:      [8]byte{9, 8, 7, 6, 5, 4, 3, 2},
		VehicleMAC:     [6]byte{0x00, 0x1b, 0x44, 0x11, 0x3a, 0xb7},
		SessionID:      [8]byte{0xde, 0xad, 0xbe, 0xef, 0, 1, 2, 3},
		EnergyCapacity: 775,
		EnergyRequest:  402,
		DepartureTime:  1760000000,
	}
}

func TestEncodedSizes(t *testing.T) {
	assert.Len(t, Encode(NewCommand()), 8)
	assert.Len(t, Encode(NewState()), 48)
	assert.Len(t, Encode(NewCommandEnvelope()), 16)
	assert.Len(t, Encode(NewStateEnvelope()), 56)
}

func TestCommandWireLayout(t *testing.T) {
	c := &Command{Version: 0, Type: CtrlCmd, Enable: true, Identification: false, CurrentDemand: 0x0102}
	assert.Equal(t, []byte{0, 0, 1, 0, 0x01, 0x02, 0, 0}, Encode(c))
}

func TestStateWireLayout(t *testing.T) {
	s := sampleState()
	b := Encode(&s)

	assert.Equal(t, byte(CtrlState), b[1])
	assert.Equal(t, byte(types.StateCharging), b[2])
	assert.Equal(t, byte(types.PhasesAC1), b[3])
	assert.Equal(t, uint16(163), binary.BigEndian.Uint16(b[4:6]))
	assert.Equal(t, uint16(2301), binary.BigEndian.Uint16(b[6:8]))
	assert.Equal(t, "DE12345", string(b[8:15]))
	assert.Equal(t, byte(0), b[15], "equipment id terminator")
	assert.Equal(t, s.VehicleMAC[:], b[24:30])
	assert.Equal(t, s.SessionID[:], b[32:40])
	assert.Equal(t, uint16(775), binary.BigEndian.Uint16(b[40:42]))
	assert.Equal(t, uint16(402), binary.BigEndian.Uint16(b[42:44]))
	assert.Equal(t, uint32(1760000000), binary.BigEndian.Uint32(b[44:48]))
}

func TestHardwareRecordFollowsPayload(t *testing.T) {
	e := NewCommandEnvelope()
	e.Hardware = Hardware{
		MainContactor:        true,
		IMD:                  7,
		SourceEnable:         true,
		SourceCurrentControl: true,
		SourceVoltage:        4000,
		SourceCurrent:        320,
	}
	b := Encode(e)
	assert.Equal(t, []byte{1, 7, 1, 1, 0x0f, 0xa0, 0x01, 0x40}, b[8:16])
	assert.Equal(t, byte(SeCtrlCmd), b[1])
}

func TestRoundTrip(t *testing.T) {
	st := sampleState()
	sentinel := sampleState()
	sentinel.Current = Unknown
	sentinel.Voltage = Unknown

	messages := []Message{
		&Command{Version: 0, Type: CtrlCmd, Enable: true, Identification: true, CurrentDemand: 0xffff},
		&Command{Version: 0, Type: CtrlCmd},
		&st,
		&sentinel,
		&CommandEnvelope{
			Command:  Command{Type: SeCtrlCmd, Enable: true, CurrentDemand: 160},
			Hardware: Hardware{MainContactor: true, SourceVoltage: 0xffff, SourceCurrent: 1},
		},
		&StateEnvelope{
			State:    sentinel,
			Hardware: Hardware{SourceEnable: true, IMD: 255},
		},
		&ParamMessage{Type: ParamWrite, Payload: []byte{1, 2, 3}},
	}
	// The envelope's embedded state carries the envelope discriminator.
	messages[5].(*StateEnvelope).State.Type = SeCtrlState

	for _, m := range messages {
		got, err := Decode(Encode(m))
		require.NoError(t, err, "%T", m)
		assert.Equal(t, m, got, "%T", m)
	}
}

func TestRoundTripAllChargingStates(t *testing.T) {
	for _, s := range types.AllChargingStates {
		env := NewStateEnvelope()
		env.State.State = s
		got, err := DecodeStateEnvelope(Encode(env))
		require.NoError(t, err)
		assert.Equal(t, s, got.State.State)
	}
}

func TestDecodeTooShort(t *testing.T) {
	full := map[MsgType][]byte{
		CtrlCmd:     Encode(NewCommand()),
		CtrlState:   Encode(NewState()),
		SeCtrlCmd:   Encode(NewCommandEnvelope()),
		SeCtrlState: Encode(NewStateEnvelope()),
	}
	for typ, b := range full {
		for n := 0; n < len(b); n++ {
			m, err := Decode(b[:n])
			assert.Nil(t, m)
			require.ErrorIs(t, err, ErrTooShort, "%s truncated to %d", typ, n)
		}
	}

	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestDecodeUnknownType(t *testing.T) {
	b := make([]byte, StateEnvelopeSize)
	b[1] = 6
	_, err := Decode(b)
	assert.ErrorIs(t, err, ErrUnknownMessageType)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, MsgType(6), de.Type)
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	b := append(Encode(NewCommand()), 0xaa, 0xbb)
	m, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, NewCommand(), m)
}

func TestTypedEnvelopeDecoders(t *testing.T) {
	_, err := DecodeStateEnvelope(Encode(NewCommandEnvelope()))
	assert.Error(t, err)

	_, err = DecodeCommandEnvelope(Encode(NewStateEnvelope()))
	assert.Error(t, err)

	env, err := DecodeCommandEnvelope(Encode(NewCommandEnvelope()))
	require.NoError(t, err)
	assert.Equal(t, SeCtrlCmd, env.MsgType())
}

func TestClearDefaults(t *testing.T) {
	c := &Command{Enable: true, CurrentDemand: 5, Type: SeCtrlState}
	c.Clear()
	assert.Equal(t, Command{Version: 0, Type: CtrlCmd, Enable: false, Identification: true, CurrentDemand: 160}, *c)

	s := sampleState()
	s.Clear()
	assert.Equal(t, types.StateOff, s.State)
	assert.Equal(t, types.PhasesAC3, s.Phases)
	assert.Equal(t, Unknown, s.Current)
	assert.Equal(t, Unknown, s.Voltage)
	assert.Equal(t, "ZZ00000", s.EquipmentIDString())
	assert.Equal(t, [8]byte{1, 2, 3, 4, 5, 6, 7, 8}, s.VehicleID)
	assert.Equal(t, [6]byte{}, s.VehicleMAC)
	assert.Equal(t, [8]byte{}, s.SessionID)

	e := NewStateEnvelope()
	e.Hardware.MainContactor = true
	e.State.Current = 10
	e.Clear()
	assert.Equal(t, SeCtrlState, e.MsgType())
	assert.False(t, e.Hardware.MainContactor)
	assert.Equal(t, Unknown, e.State.Current)
}

func TestClearPreventsStaleFields(t *testing.T) {
	e := NewCommandEnvelope()
	e.Command.Enable = true
	e.Hardware.MainContactor = true
	first := Encode(e)

	e.Clear()
	second := Encode(e)
	assert.NotEqual(t, first, second)
	assert.Equal(t, Encode(NewCommandEnvelope()), second)
}

func TestCurrentDemandFor(t *testing.T) {
	want := map[types.ChargingState]uint16{
		types.StateOff:            0,
		types.StateIdle:           10,
		types.StateConnected:      20,
		types.StateIdentification: 30,
		types.StateReady:          100,
		types.StateCharging:       160,
		types.StateStop:           5,
		types.StateFinished:       1,
		types.StateError:          0,
	}
	for s, v := range want {
		assert.Equal(t, v, CurrentDemandFor(s), s.String())
	}
}
