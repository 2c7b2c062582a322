package protocol

import (
	"fmt"

	"wallbox-service/internal/types"
)

// Version is the only message format revision understood by this codec.
const Version uint8 = 0

// MsgType is the message discriminator carried in byte 1 of every message.
type MsgType uint8

const (
	CtrlCmd     MsgType = 0 // process data commanding the stack
	CtrlState   MsgType = 1 // state and basic identification of the stack
	ParamRead   MsgType = 2 // reserved
	ParamWrite  MsgType = 3 // reserved
	SeCtrlCmd   MsgType = 4 // command including supply equipment hardware state
	SeCtrlState MsgType = 5 // state including supply equipment hardware command
)

func (t MsgType) String() string {
	switch t {
	case CtrlCmd:
		return "CtrlCmd"
	case CtrlState:
		return "CtrlState"
	case ParamRead:
		return "ParamRead"
	case ParamWrite:
		return "ParamWrite"
	case SeCtrlCmd:
		return "SeCtrlCmd"
	case SeCtrlState:
		return "SeCtrlState"
	default:
		return fmt.Sprintf("MsgType(%d)", uint8(t))
	}
}

// Fixed message sizes in bytes.
const (
	HeaderSize          = 2
	CommandSize         = 8
	StateSize           = 48
	HardwareSize        = 8
	CommandEnvelopeSize = CommandSize + HardwareSize
	StateEnvelopeSize   = StateSize + HardwareSize
)

// Unknown is the sentinel for current and voltage values that are not available.
const Unknown uint16 = 0x8000

// Message is implemented by every wire shape.
type Message interface {
	MsgType() MsgType
	// Size is the encoded length in bytes.
	Size() int
	// Clear resets the message to its canonical defaults.
	Clear()
	put(b []byte)
	get(b []byte)
}

// Command is the command payload: enable a session, confirm identification and
// announce a current demand.
type Command struct {
	Version        uint8
	Type           MsgType
	Enable         bool
	Identification bool
	CurrentDemand  uint16 // A/10
}

func NewCommand() *Command {
	c := &Command{}
	c.Clear()
	return c
}

func (c *Command) MsgType() MsgType { return c.Type }
func (c *Command) Size() int        { return CommandSize }

func (c *Command) Clear() {
	c.Version = Version
	c.Type = CtrlCmd
	c.Enable = false
	c.Identification = true
	c.CurrentDemand = 160
}

// State is the state payload reported by a stack.
type State struct {
	Version        uint8
	Type           MsgType
	State          types.ChargingState
	Phases         types.SupplyPhases
	Current        uint16 // A/10, Unknown if not available
	Voltage        uint16 // V/10, Unknown if not available
	EquipmentID    [7]byte
	VehicleID      [8]byte
	VehicleMAC     [6]byte
	SessionID      [8]byte
	EnergyCapacity uint16 // kWh/10
	EnergyRequest  uint16 // kWh/10
	DepartureTime  uint32 // unix seconds
}

var (
	defaultEquipmentID = [7]byte{'Z', 'Z', '0', '0', '0', '0', '0'}
	defaultVehicleID   = [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
)

func NewState() *State {
	s := &State{}
	s.Clear()
	return s
}

func (s *State) MsgType() MsgType { return s.Type }
func (s *State) Size() int        { return StateSize }

func (s *State) Clear() {
	*s = State{
		Version:     Version,
		Type:        CtrlState,
		State:       types.StateOff,
		Phases:      types.PhasesAC3,
		Current:     Unknown,
		Voltage:     Unknown,
		EquipmentID: defaultEquipmentID,
		VehicleID:   defaultVehicleID,
	}
}

// EquipmentIDString returns the equipment id without trailing NULs.
func (s *State) EquipmentIDString() string {
	n := 0
	for n < len(s.EquipmentID) && s.EquipmentID[n] != 0 {
		n++
	}
	return string(s.EquipmentID[:n])
}

// Hardware is the supply equipment record appended to the envelope messages. In a
// command it reports hardware state, in a state message it carries hardware commands.
type Hardware struct {
	MainContactor        bool
	IMD                  uint8 // insulation monitoring, not yet defined
	SourceEnable         bool
	SourceCurrentControl bool
	SourceVoltage        uint16 // V/10
	SourceCurrent        uint16 // A/10
}

func (h *Hardware) Clear() {
	*h = Hardware{}
}

// CommandEnvelope is a Command followed by the hardware record (SeCtrlCmd).
type CommandEnvelope struct {
	Command  Command
	Hardware Hardware
}

func NewCommandEnvelope() *CommandEnvelope {
	e := &CommandEnvelope{}
	e.Clear()
	return e
}

func (e *CommandEnvelope) MsgType() MsgType { return e.Command.Type }
func (e *CommandEnvelope) Size() int        { return CommandEnvelopeSize }

func (e *CommandEnvelope) Clear() {
	e.Command.Clear()
	e.Command.Type = SeCtrlCmd
	e.Hardware.Clear()
}

// StateEnvelope is a State followed by the hardware record (SeCtrlState).
type StateEnvelope struct {
	State    State
	Hardware Hardware
}

func NewStateEnvelope() *StateEnvelope {
	e := &StateEnvelope{}
	e.Clear()
	return e
}

func (e *StateEnvelope) MsgType() MsgType { return e.State.Type }
func (e *StateEnvelope) Size() int        { return StateEnvelopeSize }

func (e *StateEnvelope) Clear() {
	e.State.Clear()
	e.State.Type = SeCtrlState
	e.Hardware.Clear()
}

// ParamMessage carries a ParamRead or ParamWrite payload. The payload is kept
// verbatim and not interpreted.
type ParamMessage struct {
	Version uint8
	Type    MsgType
	Payload []byte
}

func (p *ParamMessage) MsgType() MsgType { return p.Type }
func (p *ParamMessage) Size() int        { return HeaderSize + len(p.Payload) }

func (p *ParamMessage) Clear() {
	p.Version = Version
	if p.Type != ParamWrite {
		p.Type = ParamRead
	}
	p.Payload = nil
}

// CurrentDemandFor maps a charging state to the demand code sent in outgoing
// commands. The peer reads the code as a state indicator, so the values must not
// change.
func CurrentDemandFor(s types.ChargingState) uint16 {
	switch s {
	case types.StateOff:
		return 0
	case types.StateIdle:
		return 10
	case types.StateConnected:
		return 20
	case types.StateIdentification:
		return 30
	case types.StateReady:
		return 100
	case types.StateCharging:
		return 160
	case types.StateStop:
		return 5
	case types.StateFinished:
		return 1
	default:
		return 0
	}
}
