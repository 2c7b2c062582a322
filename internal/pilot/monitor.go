// Package pilot classifies the Control-Pilot signal into its connection states
// and notifies listeners when the state changes.
package pilot

import (
	"fmt"
	"sync"

	"wallbox-service/internal/config"
	"wallbox-service/internal/hardware"
	"wallbox-service/internal/logger"
	"wallbox-service/internal/types"
)

// Listener receives the previous and the new pilot state.
type Listener func(old, new types.PilotState)

// Monitor is implemented by every acquisition strategy.
type Monitor interface {
	State() types.PilotState
	OnChange(l Listener)
	// StartMonitoring and StopMonitoring are idempotent.
	StartMonitoring() error
	StopMonitoring()
}

// DigitalReader is the input side of the hardware I/O capability set.
type DigitalReader interface {
	ReadDigitalInput(channel string) (bool, error)
}

// Classify maps a CP level in millivolts to a pilot state. Thresholds are strict.
func Classify(mv int) types.PilotState {
	switch {
	case mv > 11000:
		return types.PilotA
	case mv > 8000:
		return types.PilotB
	case mv > 5000:
		return types.PilotC
	case mv > 2000:
		return types.PilotD
	case mv > 500:
		return types.PilotE
	case mv < -10000:
		return types.PilotF
	default:
		return types.PilotUnknown
	}
}

type notifier struct {
	mu        sync.Mutex
	state     types.PilotState
	listeners []Listener
}

func (n *notifier) State() types.PilotState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *notifier) OnChange(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// update records s and fires the listeners outside the lock when it differs.
func (n *notifier) update(s types.PilotState) bool {
	n.mu.Lock()
	old := n.state
	if old == s {
		n.mu.Unlock()
		return false
	}
	n.state = s
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.Unlock()

	for _, l := range listeners {
		l(old, s)
	}
	return true
}

// New builds the monitor selected by cfg.Pilot.Source.
func New(cfg *config.Config, io DigitalReader, l *logger.Logger) (Monitor, error) {
	switch cfg.Pilot.Source {
	case config.PilotPolling:
		return NewPollingMonitor(DigitalLevel(io, hardware.LinePilot), cfg.Pilot.Interval, l), nil
	case config.PilotAdc:
		reader := AdcLevel(cfg.Pilot.AdcDevice, cfg.Pilot.AdcChannel, cfg.Pilot.AdcScale, cfg.Pilot.AdcOffset)
		return NewPollingMonitor(reader, cfg.Pilot.Interval, l), nil
	case config.PilotRemote:
		return NewRemoteMonitor(l), nil
	default:
		return nil, fmt.Errorf("unknown pilot source: %s", cfg.Pilot.Source)
	}
}
