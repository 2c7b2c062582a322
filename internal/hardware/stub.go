package hardware

import (
	"fmt"
	"sync"

	"wallbox-service/internal/logger"
)

// StubHardwareIO keeps line levels in memory. It is used in development mode
// and by the simulator.
type StubHardwareIO struct {
	logger         *logger.Logger
	mu             sync.RWMutex
	outputs        map[string]bool
	inputs         map[string]bool
	inputCallbacks map[string]InputCallback
}

func NewStubHardwareIO(l *logger.Logger) *StubHardwareIO {
	return &StubHardwareIO{
		logger: l.WithTag("StubIO"),
		outputs: map[string]bool{
			LineRelay: false, LineLedGreen: false, LineLedYellow: false, LineLedRed: false,
		},
		// CP idles high (no vehicle), button released.
		inputs:         map[string]bool{LinePilot: true, LineButton: false},
		inputCallbacks: make(map[string]InputCallback),
	}
}

func (s *StubHardwareIO) Initialize() error {
	s.logger.Infof("Stub GPIO initialized")
	return nil
}

func (s *StubHardwareIO) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.outputs {
		s.outputs[name] = false
	}
	s.logger.Infof("Stub GPIO cleaned up")
}

func (s *StubHardwareIO) ReadDigitalInput(channel string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.inputs[channel]
	if !ok {
		return false, fmt.Errorf("unknown digital input channel: %s", channel)
	}
	return v, nil
}

func (s *StubHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outputs[channel]; !ok {
		return fmt.Errorf("unknown digital output channel: %s", channel)
	}
	if s.outputs[channel] != value {
		s.logger.Debugf("Set DO %s=%v", channel, value)
	}
	s.outputs[channel] = value
	return nil
}

func (s *StubHardwareIO) RegisterInputCallback(channel string, callback InputCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputCallbacks[channel] = callback
}

// Output returns the last level written to an output.
func (s *StubHardwareIO) Output(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.outputs[channel]
}

// SetInput changes an input level and fires its callback when the level changed.
func (s *StubHardwareIO) SetInput(channel string, value bool) error {
	s.mu.Lock()
	old, known := s.inputs[channel]
	s.inputs[channel] = value
	cb := s.inputCallbacks[channel]
	s.mu.Unlock()

	if known && old == value {
		return nil
	}
	if cb != nil {
		return cb(channel, value)
	}
	return nil
}
