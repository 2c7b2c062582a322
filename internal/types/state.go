package types

import "time"

// ChargingState is the session state. The numeric value is also the wire encoding
// used in the State message.
type ChargingState uint8

const (
	StateOff ChargingState = iota
	StateIdle
	StateConnected
	StateIdentification
	StateReady
	StateCharging
	StateStop
	StateFinished
	StateError
)

func (s ChargingState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateIdentification:
		return "identification"
	case StateReady:
		return "ready"
	case StateCharging:
		return "charging"
	case StateStop:
		return "stop"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "<undefined>"
	}
}

func (s ChargingState) Valid() bool {
	return s <= StateError
}

// AllChargingStates lists every state in wire order.
var AllChargingStates = []ChargingState{
	StateOff, StateIdle, StateConnected, StateIdentification, StateReady,
	StateCharging, StateStop, StateFinished, StateError,
}

// PilotState is the IEC 61851-1 Control-Pilot band. Values 0-5 are the ordinals
// carried by remote CP messages.
type PilotState uint8

const (
	PilotA PilotState = iota // 12V, no vehicle
	PilotB                   // 9V, vehicle connected
	PilotC                   // 6V, ready to charge
	PilotD                   // 3V, ventilation required
	PilotE                   // 0V, no power
	PilotF                   // -12V, fault
	PilotUnknown
)

func (p PilotState) String() string {
	switch p {
	case PilotA:
		return "A"
	case PilotB:
		return "B"
	case PilotC:
		return "C"
	case PilotD:
		return "D"
	case PilotE:
		return "E"
	case PilotF:
		return "F"
	default:
		return "unknown"
	}
}

// Description returns the human readable meaning of the band.
func (p PilotState) Description() string {
	switch p {
	case PilotA:
		return "no vehicle"
	case PilotB:
		return "vehicle connected"
	case PilotC:
		return "ready to charge"
	case PilotD:
		return "ventilation required"
	case PilotE:
		return "no power"
	case PilotF:
		return "fault"
	default:
		return "unknown"
	}
}

// SupplyPhases tells a receiver how to compute power from current and voltage.
type SupplyPhases uint8

const (
	PhasesDC  SupplyPhases = 0
	PhasesAC1 SupplyPhases = 1
	PhasesAC3 SupplyPhases = 3
)

func (p SupplyPhases) String() string {
	switch p {
	case PhasesDC:
		return "dc"
	case PhasesAC1:
		return "ac1"
	case PhasesAC3:
		return "ac3"
	default:
		return "<undefined>"
	}
}

// Status is a point-in-time snapshot of a session controller.
type Status struct {
	State          ChargingState
	RelayEnabled   bool
	SessionEnabled bool
	Pilot          PilotState
	PeerState      ChargingState
	SessionID      string
	Timestamp      time.Time
}

// Equal reports whether two snapshots describe the same controller state,
// ignoring the timestamp.
func (s Status) Equal(o Status) bool {
	return s.State == o.State &&
		s.RelayEnabled == o.RelayEnabled &&
		s.SessionEnabled == o.SessionEnabled &&
		s.Pilot == o.Pilot &&
		s.PeerState == o.PeerState &&
		s.SessionID == o.SessionID
}
