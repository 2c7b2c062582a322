package fsm

import (
	"errors"
	"fmt"
	"sync"

	"wallbox-service/internal/types"
)

var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError describes a rejected transition. It matches ErrInvalidTransition
// with errors.Is.
type TransitionError struct {
	From types.ChargingState
	To   types.ChargingState
	Op   string
}

func (e *TransitionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: invalid state transition %s -> %s", e.Op, e.From, e.To)
	}
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Listener is notified after every successful transition, including each step
// of a composite operation. A returned error is passed back to the caller of
// the transition; listeners registered after the failing one are not called.
type Listener func(from, to types.ChargingState, reason string) error

// Subscription identifies a registered listener.
type Subscription uint64

type subscriber struct {
	id Subscription
	fn Listener
}

// Machine holds the current charging state and enforces the transition table.
// Listeners run on the caller's goroutine without the internal lock held, so
// they may query the machine. Callers that need composite operations to be
// serialised against each other must provide their own critical section.
type Machine struct {
	mu          sync.RWMutex
	current     types.ChargingState
	subscribers []subscriber
	nextID      Subscription
}

// New returns a machine in the Idle state.
func New() *Machine {
	return &Machine{current: types.StateIdle}
}

func (m *Machine) Current() types.ChargingState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Machine) IsCharging() bool {
	return m.Current() == types.StateCharging
}

// Subscribe registers l. Listeners are called in registration order.
func (m *Machine) Subscribe(l Listener) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.subscribers = append(m.subscribers, subscriber{id: m.nextID, fn: l})
	return m.nextID
}

// Unsubscribe removes a listener. Unknown subscriptions are ignored.
func (m *Machine) Unsubscribe(s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub.id == s {
			m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// CanTransitionTo reports whether TransitionTo(to) would succeed from the
// current state. A self-transition is always allowed.
func (m *Machine) CanTransitionTo(to types.ChargingState) bool {
	from := m.Current()
	return from == to || IsValidTransition(from, to)
}

// TransitionTo moves to the target state. Transitioning to the current state
// succeeds without notifying listeners.
func (m *Machine) TransitionTo(to types.ChargingState, reason string) error {
	m.mu.Lock()
	from := m.current
	if from == to {
		m.mu.Unlock()
		return nil
	}
	if !IsValidTransition(from, to) {
		m.mu.Unlock()
		return &TransitionError{From: from, To: to}
	}
	m.current = to
	subs := make([]subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	for _, sub := range subs {
		if err := sub.fn(from, to, reason); err != nil {
			return fmt.Errorf("state listener failed on %s -> %s: %w", from, to, err)
		}
	}
	return nil
}

// walk performs each step in order. It is not atomic: a failure leaves the
// machine in the last state it reached.
func (m *Machine) walk(steps []types.ChargingState, reason string) error {
	for _, s := range steps {
		if err := m.TransitionTo(s, reason); err != nil {
			return err
		}
	}
	return nil
}

// StartCharging walks Connected -> Identification -> Ready -> Charging starting
// from wherever the machine is on that path.
func (m *Machine) StartCharging(reason string) error {
	from := m.Current()
	for i, s := range startPath[:len(startPath)-1] {
		if s == from {
			return m.walk(startPath[i+1:], reason)
		}
	}
	return &TransitionError{From: from, To: types.StateCharging, Op: "start charging"}
}

// StopCharging walks Stop -> Finished -> Idle from Charging or Ready.
func (m *Machine) StopCharging(reason string) error {
	from := m.Current()
	if from != types.StateCharging && from != types.StateReady {
		return &TransitionError{From: from, To: types.StateStop, Op: "stop charging"}
	}
	return m.walk(stopPath, reason)
}

func (m *Machine) PauseCharging(reason string) error {
	from := m.Current()
	if from != types.StateCharging {
		return &TransitionError{From: from, To: types.StateReady, Op: "pause charging"}
	}
	return m.TransitionTo(types.StateReady, reason)
}

func (m *Machine) ResumeCharging(reason string) error {
	from := m.Current()
	if from != types.StateReady {
		return &TransitionError{From: from, To: types.StateCharging, Op: "resume charging"}
	}
	return m.TransitionTo(types.StateCharging, reason)
}

// EnterError moves to Error from any state.
func (m *Machine) EnterError(reason string) error {
	return m.TransitionTo(types.StateError, reason)
}

// Reset leaves Error for Idle. It fails in any other state.
func (m *Machine) Reset() error {
	from := m.Current()
	if from != types.StateError {
		return &TransitionError{From: from, To: types.StateIdle, Op: "reset"}
	}
	return m.TransitionTo(types.StateIdle, "reset")
}
