package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"wallbox-service/internal/logger"
	"wallbox-service/internal/pilot"
	"wallbox-service/internal/protocol"
	"wallbox-service/internal/types"
)

const (
	simCurrent = 160  // 16.0 A
	simVoltage = 2300 // 230.0 V
)

type Sender interface {
	Send(b []byte) error
}

// Simulator plays the peer stack: it reports a charging state and hardware
// commands, and tracks what the controller last commanded.
type Simulator struct {
	mu        sync.Mutex
	sender    Sender
	out       io.Writer
	logger    *logger.Logger
	contactor bool
	state     types.ChargingState

	lastEnable bool
	lastDemand uint16
	// Assume energized until the controller says otherwise.
	lastRelay  bool
}

func NewSimulator(sender Sender, out io.Writer, l *logger.Logger) *Simulator {
	return &Simulator{
		sender:    sender,
		out:       out,
		logger:    l.WithTag("Simulator"),
		state:     types.StateIdle,
		lastRelay: true,
	}
}

// StateMessage encodes the current peer state as a SeCtrlState envelope.
func (s *Simulator) StateMessage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	env := protocol.NewStateEnvelope()
	env.State.State = s.state
	env.State.Phases = types.PhasesAC3
	env.State.Current = simCurrent
	env.State.Voltage = simVoltage
	env.Hardware.MainContactor = s.contactor
	env.Hardware.SourceEnable = s.contactor
	env.Hardware.SourceVoltage = simVoltage
	env.Hardware.SourceCurrent = simCurrent
	return protocol.Encode(env)
}

func (s *Simulator) SendState() error {
	return s.sender.Send(s.StateMessage())
}

// HandleDatagram records the controller's command envelope. Other datagrams
// are ignored.
func (s *Simulator) HandleDatagram(b []byte) {
	env, err := protocol.DecodeCommandEnvelope(b)
	if err != nil {
		s.logger.Debugf("Ignoring datagram: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRelay = env.Hardware.MainContactor
	if env.Command.Enable != s.lastEnable || env.Command.CurrentDemand != s.lastDemand {
		fmt.Fprintf(s.out, "[RX] enable=%v currentDemand=%d A/10\n", env.Command.Enable, env.Command.CurrentDemand)
		s.lastEnable = env.Command.Enable
		s.lastDemand = env.Command.CurrentDemand
	}
}

// Execute runs one interactive command and reports whether the simulator
// should exit.
func (s *Simulator) Execute(line string) (quit bool) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return false
	}

	switch cmd := fields[0]; cmd {
	case "on", "off":
		s.mu.Lock()
		s.contactor = cmd == "on"
		s.mu.Unlock()
		fmt.Fprintf(s.out, "[CMD] Main contactor %s\n", strings.ToUpper(cmd))
	case "idle":
		s.setState(cmd, types.StateIdle)
	case "ready":
		s.setState(cmd, types.StateReady)
	case "charge":
		s.setState(cmd, types.StateCharging)
	case "stop":
		s.setState(cmd, types.StateStop)
	case "cp":
		if len(fields) != 2 {
			fmt.Fprintln(s.out, "Usage: cp <a|b|c|d|e|f>")
			return false
		}
		s.sendPilot(fields[1])
	case "status":
		s.printStatus()
	case "help":
		printHelp(s.out)
	case "quit", "exit":
		return true
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for available commands.")
	}
	return false
}

// setState changes the reported state. The controller must have enabled the
// session and energized the relay.
func (s *Simulator) setState(cmd string, state types.ChargingState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastEnable {
		fmt.Fprintf(s.out, "[WARN] Cannot execute '%s': wallbox enable=false (charging disabled)\n", cmd)
		return
	}
	if !s.lastRelay {
		fmt.Fprintf(s.out, "[WARN] Cannot enter %s state: main contactor is OFF\n", strings.ToUpper(state.String()))
		return
	}
	s.state = state
	fmt.Fprintf(s.out, "[CMD] State: %s\n", strings.ToUpper(state.String()))
}

func (s *Simulator) sendPilot(arg string) {
	state, ok := parsePilot(arg)
	if !ok {
		fmt.Fprintf(s.out, "Unknown CP state %q\n", arg)
		return
	}
	b, _ := pilot.EncodeMessage(state)
	if err := s.sender.Send(b); err != nil {
		fmt.Fprintf(s.out, "[ERR] %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "[CMD] CP: %s (%s)\n", state, state.Description())
}

func parsePilot(arg string) (types.PilotState, bool) {
	for p := types.PilotA; p <= types.PilotF; p++ {
		if strings.EqualFold(arg, p.String()) {
			return p, true
		}
	}
	return types.PilotUnknown, false
}

func (s *Simulator) printStatus() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, "--- Current Status ---")
	fmt.Fprintf(s.out, "Main Contactor: %s\n", strings.ToUpper(onOff(s.contactor)))
	fmt.Fprintf(s.out, "Charging State: %s\n", s.state)
	fmt.Fprintf(s.out, "Wallbox: enable=%v relay=%s demand=%d\n", s.lastEnable, onOff(s.lastRelay), s.lastDemand)
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `Commands:
  on      - Turn main contactor ON
  off     - Turn main contactor OFF
  idle    - Set charging state to IDLE
  ready   - Set charging state to READY
  charge  - Set charging state to CHARGING
  stop    - Set charging state to STOP
  cp <x>  - Send CP state a-f (remote pilot source)
  status  - Show current status
  help    - Show this help
  quit    - Exit simulator
`)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
