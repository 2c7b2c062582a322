package pilot

import (
	"sync"

	"wallbox-service/internal/logger"
	"wallbox-service/internal/types"
)

// Remote CP messages are two bytes: MessageTag followed by the state ordinal.
// Protocol messages start with version 0 and never carry this tag.
const (
	MessageTag  = 0x03
	MessageSize = 2
)

// IsPilotMessage reports whether b is a remote CP message.
func IsPilotMessage(b []byte) bool {
	return len(b) == MessageSize && b[0] == MessageTag
}

// EncodeMessage builds the remote CP message for s. Unknown has no encoding.
func EncodeMessage(s types.PilotState) ([]byte, bool) {
	if s > types.PilotF {
		return nil, false
	}
	return []byte{MessageTag, byte(s)}, true
}

// RemoteMonitor takes its state from CP messages pushed by a peer.
type RemoteMonitor struct {
	notifier
	logger *logger.Logger

	lifecycle sync.Mutex
	running   bool
}

func NewRemoteMonitor(l *logger.Logger) *RemoteMonitor {
	return &RemoteMonitor{
		notifier: notifier{state: types.PilotUnknown},
		logger:   l.WithTag("Pilot"),
	}
}

// StartMonitoring assumes no vehicle until the peer reports otherwise.
func (m *RemoteMonitor) StartMonitoring() error {
	m.lifecycle.Lock()
	if m.running {
		m.lifecycle.Unlock()
		return nil
	}
	m.running = true
	m.lifecycle.Unlock()

	m.update(types.PilotA)
	m.logger.Infof("Remote CP monitoring started")
	return nil
}

func (m *RemoteMonitor) StopMonitoring() {
	m.lifecycle.Lock()
	if !m.running {
		m.lifecycle.Unlock()
		return
	}
	m.running = false
	m.lifecycle.Unlock()

	m.update(types.PilotUnknown)
	m.logger.Infof("Remote CP monitoring stopped")
}

// HandleMessage consumes b when it is a CP message and reports whether it did.
// Messages received while stopped are consumed and ignored.
func (m *RemoteMonitor) HandleMessage(b []byte) bool {
	if !IsPilotMessage(b) {
		return false
	}

	m.lifecycle.Lock()
	running := m.running
	m.lifecycle.Unlock()
	if !running {
		return true
	}

	next := types.PilotUnknown
	if int(b[1]) < len(pilotStates) {
		next = pilotStates[b[1]]
	} else {
		m.logger.Warnf("Remote CP ordinal out of range: %d", b[1])
	}

	old := m.State()
	if m.update(next) {
		m.logger.Infof("Remote CP %s -> %s", old, next)
	}
	return true
}

var _ Monitor = (*RemoteMonitor)(nil)

// pilotStates is indexed by the wire ordinal.
var pilotStates = [...]types.PilotState{
	types.PilotA, types.PilotB, types.PilotC, types.PilotD, types.PilotE, types.PilotF,
}
