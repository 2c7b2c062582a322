package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"wallbox-service/internal/types"
)

var (
	ErrTooShort           = errors.New("message too short")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// DecodeError reports why a datagram was rejected. It matches ErrTooShort or
// ErrUnknownMessageType with errors.Is.
type DecodeError struct {
	Kind error
	Type MsgType
	Got  int
	Want int
}

func (e *DecodeError) Error() string {
	if errors.Is(e.Kind, ErrTooShort) {
		return fmt.Sprintf("decode %s: %v: got %d bytes, need %d", e.Type, e.Kind, e.Got, e.Want)
	}
	return fmt.Sprintf("decode: %v %d", e.Kind, uint8(e.Type))
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

// Encode serialises m into its fixed-size wire form. Multi-byte fields are
// written big-endian regardless of host byte order.
func Encode(m Message) []byte {
	b := make([]byte, m.Size())
	m.put(b)
	return b
}

// Decode parses a datagram. The variant is selected by the type byte and the
// input must hold at least that variant's fixed size; trailing bytes are ignored.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return nil, &DecodeError{Kind: ErrTooShort, Got: len(b), Want: HeaderSize}
	}

	typ := MsgType(b[1])
	var m Message
	switch typ {
	case CtrlCmd:
		m = &Command{}
	case CtrlState:
		m = &State{}
	case SeCtrlCmd:
		m = &CommandEnvelope{}
	case SeCtrlState:
		m = &StateEnvelope{}
	case ParamRead, ParamWrite:
		m = &ParamMessage{}
	default:
		return nil, &DecodeError{Kind: ErrUnknownMessageType, Type: typ}
	}

	if len(b) < m.Size() {
		return nil, &DecodeError{Kind: ErrTooShort, Type: typ, Got: len(b), Want: m.Size()}
	}
	m.get(b)
	return m, nil
}

// DecodeStateEnvelope decodes b and requires it to be a SeCtrlState message.
func DecodeStateEnvelope(b []byte) (*StateEnvelope, error) {
	m, err := Decode(b)
	if err != nil {
		return nil, err
	}
	env, ok := m.(*StateEnvelope)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %s", SeCtrlState, m.MsgType())
	}
	return env, nil
}

// DecodeCommandEnvelope decodes b and requires it to be a SeCtrlCmd message.
func DecodeCommandEnvelope(b []byte) (*CommandEnvelope, error) {
	m, err := Decode(b)
	if err != nil {
		return nil, err
	}
	env, ok := m.(*CommandEnvelope)
	if !ok {
		return nil, fmt.Errorf("expected %s, got %s", SeCtrlCmd, m.MsgType())
	}
	return env, nil
}

func putBool(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func (c *Command) put(b []byte) {
	b[0] = c.Version
	b[1] = byte(c.Type)
	b[2] = putBool(c.Enable)
	b[3] = putBool(c.Identification)
	binary.BigEndian.PutUint16(b[4:6], c.CurrentDemand)
	binary.BigEndian.PutUint16(b[6:8], 0)
}

func (c *Command) get(b []byte) {
	c.Version = b[0]
	c.Type = MsgType(b[1])
	c.Enable = b[2] != 0
	c.Identification = b[3] != 0
	c.CurrentDemand = binary.BigEndian.Uint16(b[4:6])
}

func (s *State) put(b []byte) {
	b[0] = s.Version
	b[1] = byte(s.Type)
	b[2] = byte(s.State)
	b[3] = byte(s.Phases)
	binary.BigEndian.PutUint16(b[4:6], s.Current)
	binary.BigEndian.PutUint16(b[6:8], s.Voltage)
	copy(b[8:15], s.EquipmentID[:])
	b[15] = 0
	copy(b[16:24], s.VehicleID[:])
	copy(b[24:30], s.VehicleMAC[:])
	b[30], b[31] = 0, 0
	copy(b[32:40], s.SessionID[:])
	binary.BigEndian.PutUint16(b[40:42], s.EnergyCapacity)
	binary.BigEndian.PutUint16(b[42:44], s.EnergyRequest)
	binary.BigEndian.PutUint32(b[44:48], s.DepartureTime)
}

func (s *State) get(b []byte) {
	s.Version = b[0]
	s.Type = MsgType(b[1])
	s.State = types.ChargingState(b[2])
	s.Phases = types.SupplyPhases(b[3])
	s.Current = binary.BigEndian.Uint16(b[4:6])
	s.Voltage = binary.BigEndian.Uint16(b[6:8])
	copy(s.EquipmentID[:], b[8:15])
	copy(s.VehicleID[:], b[16:24])
	copy(s.VehicleMAC[:], b[24:30])
	copy(s.SessionID[:], b[32:40])
	s.EnergyCapacity = binary.BigEndian.Uint16(b[40:42])
	s.EnergyRequest = binary.BigEndian.Uint16(b[42:44])
	s.DepartureTime = binary.BigEndian.Uint32(b[44:48])
}

func (h *Hardware) put(b []byte) {
	b[0] = putBool(h.MainContactor)
	b[1] = h.IMD
	b[2] = putBool(h.SourceEnable)
	b[3] = putBool(h.SourceCurrentControl)
	binary.BigEndian.PutUint16(b[4:6], h.SourceVoltage)
	binary.BigEndian.PutUint16(b[6:8], h.SourceCurrent)
}

func (h *Hardware) get(b []byte) {
	h.MainContactor = b[0] != 0
	h.IMD = b[1]
	h.SourceEnable = b[2] != 0
	h.SourceCurrentControl = b[3] != 0
	h.SourceVoltage = binary.BigEndian.Uint16(b[4:6])
	h.SourceCurrent = binary.BigEndian.Uint16(b[6:8])
}

func (e *CommandEnvelope) put(b []byte) {
	e.Command.put(b[:CommandSize])
	e.Hardware.put(b[CommandSize:CommandEnvelopeSize])
}

func (e *CommandEnvelope) get(b []byte) {
	e.Command.get(b[:CommandSize])
	e.Hardware.get(b[CommandSize:CommandEnvelopeSize])
}

func (e *StateEnvelope) put(b []byte) {
	e.State.put(b[:StateSize])
	e.Hardware.put(b[StateSize:StateEnvelopeSize])
}

func (e *StateEnvelope) get(b []byte) {
	e.State.get(b[:StateSize])
	e.Hardware.get(b[StateSize:StateEnvelopeSize])
}

func (p *ParamMessage) put(b []byte) {
	b[0] = p.Version
	b[1] = byte(p.Type)
	copy(b[HeaderSize:], p.Payload)
}

func (p *ParamMessage) get(b []byte) {
	p.Version = b[0]
	p.Type = MsgType(b[1])
	p.Payload = append([]byte(nil), b[HeaderSize:]...)
}
