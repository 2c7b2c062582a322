package core

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"wallbox-service/internal/config"
	"wallbox-service/internal/fsm"
	"wallbox-service/internal/hardware"
	"wallbox-service/internal/logger"
	"wallbox-service/internal/metrics"
	"wallbox-service/internal/pilot"
	"wallbox-service/internal/protocol"
	"wallbox-service/internal/types"
)

const relayOffAttempts = 3

// peerSnapshot holds the last values seen from the peer. Fields are acted on
// only when they change.
type peerSnapshot struct {
	enable    bool
	state     types.ChargingState
	contactor bool
}

type sentSnapshot struct {
	enable bool
	relay  bool
	state  types.ChargingState
	valid  bool
}

type Option func(*Controller)

// WithPublisher publishes status snapshots and faults.
func WithPublisher(p StatusPublisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// WithPilot attaches a pilot monitor. Remote monitors also receive CP messages
// arriving on the transport.
func WithPilot(m pilot.Monitor) Option {
	return func(c *Controller) { c.pilot = m }
}

func WithMetrics(m *metrics.ControllerMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock replaces time.Now for the peer watchdog and status timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller reconciles the charging state machine, the main contactor, the
// Control-Pilot signal and the peer's messages. A single mutex serialises
// ticks, inbound messages, operator commands and pilot changes.
type Controller struct {
	mu        sync.Mutex
	machine   *fsm.Machine
	io        DigitalIO
	transport Transport
	publisher StatusPublisher
	pilot     pilot.Monitor
	metrics   *metrics.ControllerMetrics
	logger    *logger.Logger
	now       func() time.Time
	decodeLog rate.Sometimes

	tickInterval time.Duration
	peerTimeout  time.Duration
	maxCurrent   uint16 // A/10

	relayEnabled   bool
	sessionEnabled bool
	pilotState     types.PilotState
	sessionID      string
	peer           peerSnapshot
	peerReady      bool
	sent           sentSnapshot
	lastRx         time.Time
	leds           ledPattern
	published      types.Status
	hasPublished   bool
	faults         map[int]bool

	shutdown atomic.Bool
	done     chan struct{}
	runWG    sync.WaitGroup
}

func NewController(cfg *config.Config, io DigitalIO, transport Transport, l *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		machine:        fsm.New(),
		io:             io,
		transport:      transport,
		logger:         l.WithTag("Controller"),
		now:            time.Now,
		decodeLog:      rate.Sometimes{First: 3, Interval: 10 * time.Second},
		tickInterval:   cfg.Controller.TickInterval,
		peerTimeout:    cfg.Controller.PeerTimeout,
		maxCurrent:     uint16(cfg.Controller.MaxCurrentAmps * 10),
		sessionEnabled: cfg.Controller.StartEnabled,
		pilotState:     types.PilotUnknown,
		peer:           peerSnapshot{enable: true, state: types.StateIdle},
		faults:         make(map[int]bool),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.machine.Subscribe(c.onTransition)
	if c.pilot != nil {
		c.pilot.OnChange(c.handlePilotChange)
	}
	c.metrics.ObserveSessionEnabled(c.sessionEnabled)
	return c
}

// Subscribe registers an additional state machine listener. Listeners run
// with the controller lock held and must not call back into the controller.
func (c *Controller) Subscribe(l fsm.Listener) fsm.Subscription {
	return c.machine.Subscribe(l)
}

func (c *Controller) Unsubscribe(s fsm.Subscription) {
	c.machine.Unsubscribe(s)
}

// Start de-energizes the relay, connects the transport and starts the pilot monitor.
func (c *Controller) Start() error {
	c.logger.Infof("Starting session controller (enabled=%v)", c.sessionEnabled)

	c.mu.Lock()
	if err := c.setRelayLocked(false); err != nil {
		c.mu.Unlock()
		return err
	}
	c.lastRx = c.now()
	c.refreshIndicatorsLocked()
	c.mu.Unlock()

	c.transport.SetReceiveHandler(func(b []byte) {
		_ = c.HandleMessage(b)
	})
	if err := c.transport.Connect(); err != nil {
		return err
	}

	// The pilot monitor may notify synchronously, so the lock is not held here.
	if c.pilot != nil {
		if err := c.pilot.StartMonitoring(); err != nil {
			return err
		}
	}

	c.logger.Infof("Session controller started")
	return nil
}

// Run ticks on the configured interval until ctx is done or Shutdown is called.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown.Load() {
		c.mu.Unlock()
		return ErrShutdown
	}
	c.runWG.Add(1)
	c.mu.Unlock()
	defer c.runWG.Done()

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-ticker.C:
			if err := c.Tick(); err != nil {
				c.logger.Debugf("Tick: %v", err)
			}
		}
	}
}

// Tick runs the peer watchdog, refreshes the indicators, sends the status
// message to the peer and publishes the status when it changed.
func (c *Controller) Tick() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown.Load() {
		return ErrShutdown
	}

	c.checkPeerLivenessLocked()
	c.refreshIndicatorsLocked()
	err := c.sendStatusLocked()
	c.publishStatusLocked()
	return err
}

// Shutdown stops the background work and leaves the relay de-energized. It is
// safe to call more than once.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	if !c.shutdown.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return
	}
	close(c.done)
	c.mu.Unlock()

	c.logger.Infof("Shutting down session controller")
	c.runWG.Wait()

	if c.pilot != nil {
		c.pilot.StopMonitoring()
	}
	c.transport.SetReceiveHandler(nil)
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Warnf("Failed to disconnect transport: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state := c.machine.Current()
	if state == types.StateCharging || state == types.StateReady {
		if err := c.machine.StopCharging("shutdown"); err != nil {
			c.logger.Warnf("Failed to stop charging on shutdown: %v", err)
		}
	}
	c.forceRelayOffLocked()
	c.publishStatusLocked()
	c.logger.Infof("Session controller shut down, relay off")
}

// forceRelayOffLocked retries the write and records the relay as off whatever
// the outcome.
func (c *Controller) forceRelayOffLocked() {
	var err error
	for i := 0; i < relayOffAttempts; i++ {
		err = c.io.WriteDigitalOutput(hardware.LineRelay, false)
		c.metrics.ObserveRelayWrite(false, err)
		if err == nil {
			break
		}
		c.logger.Errorf("Relay off attempt %d failed: %v", i+1, err)
	}
	if err != nil {
		c.reportFaultLocked(FaultRelayWrite, true)
	}
	c.relayEnabled = false
}

func (c *Controller) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() types.Status {
	return types.Status{
		State:          c.machine.Current(),
		RelayEnabled:   c.relayEnabled,
		SessionEnabled: c.sessionEnabled,
		Pilot:          c.pilotState,
		PeerState:      c.peer.state,
		SessionID:      c.sessionID,
		Timestamp:      c.now(),
	}
}

func (c *Controller) State() types.ChargingState {
	return c.machine.Current()
}

func (c *Controller) opError(op string, requested types.ChargingState, err error) error {
	return &OperationError{Op: op, State: c.machine.Current(), Requested: requested, Err: err}
}

// StartCharging walks the start path and then energizes the relay.
func (c *Controller) StartCharging() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "start charging"
	if c.shutdown.Load() {
		return c.opError(op, types.StateCharging, ErrShutdown)
	}
	if !c.sessionEnabled {
		c.logger.Warnf("Cannot start charging: session disabled")
		return c.opError(op, types.StateCharging, ErrDisabled)
	}
	if err := c.machine.StartCharging("operator request"); err != nil {
		return c.opError(op, types.StateCharging, err)
	}
	if err := c.setRelayLocked(true); err != nil {
		// Charging without a closed contactor is not a state to stay in.
		if stopErr := c.machine.StopCharging("relay energize failed"); stopErr != nil {
			c.logger.Errorf("Failed to leave charging after relay failure: %v", stopErr)
		}
		return c.opError(op, types.StateCharging, err)
	}
	c.logger.Infof("Charging started, session %s", c.sessionID)
	return nil
}

func (c *Controller) StopCharging() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.stopChargingLocked("operator request"); err != nil {
		return c.opError("stop charging", types.StateIdle, err)
	}
	return nil
}

// stopChargingLocked walks the stop path and then de-energizes the relay.
func (c *Controller) stopChargingLocked(reason string) error {
	if err := c.machine.StopCharging(reason); err != nil {
		return err
	}
	return c.setRelayLocked(false)
}

func (c *Controller) PauseCharging() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.machine.PauseCharging("operator request"); err != nil {
		return c.opError("pause charging", types.StateReady, err)
	}
	return nil
}

func (c *Controller) ResumeCharging() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	const op = "resume charging"
	if !c.sessionEnabled {
		return c.opError(op, types.StateCharging, ErrDisabled)
	}
	if err := c.machine.ResumeCharging("operator request"); err != nil {
		return c.opError(op, types.StateCharging, err)
	}
	return nil
}

// Reset leaves the Error state and clears the latched faults.
func (c *Controller) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.machine.Reset(); err != nil {
		return c.opError("reset", types.StateIdle, err)
	}
	for code, present := range c.faults {
		if present {
			c.reportFaultLocked(code, false)
		}
	}
	return nil
}

func (c *Controller) EnableSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enableLocked("operator")
}

func (c *Controller) DisableSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableLocked("operator")
}

func (c *Controller) enableLocked(source string) {
	c.sessionEnabled = true
	c.metrics.ObserveSessionEnabled(true)
	c.logger.Infof("Session enabled by %s", source)
	c.refreshIndicatorsLocked()
}

// disableLocked stops an active session first. A failed stop does not
// prevent disabling.
func (c *Controller) disableLocked(source string) {
	state := c.machine.Current()
	if state == types.StateCharging || state == types.StateReady {
		c.logger.Infof("Stopping active session before disable")
		if err := c.stopChargingLocked("session disabled"); err != nil {
			c.logger.Errorf("Failed to stop charging before disable: %v", err)
		}
	}
	c.sessionEnabled = false
	c.metrics.ObserveSessionEnabled(false)
	c.logger.Infof("Session disabled by %s", source)
	c.refreshIndicatorsLocked()
}

// SetRelay is the only path that changes the contactor. Energizing requires an
// enabled session.
func (c *Controller) SetRelay(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on && !c.sessionEnabled {
		return ErrDisabled
	}
	return c.setRelayLocked(on)
}

func (c *Controller) setRelayLocked(on bool) error {
	err := c.io.WriteDigitalOutput(hardware.LineRelay, on)
	c.metrics.ObserveRelayWrite(on, err)
	if err != nil {
		c.logger.Errorf("Failed to set relay %v: %v", on, err)
		c.reportFaultLocked(FaultRelayWrite, true)
		return &HardwareWriteError{Line: hardware.LineRelay, Value: on, Err: err}
	}
	if c.relayEnabled != on {
		c.logger.Infof("Relay %s", onOff(on))
	}
	c.relayEnabled = on
	return nil
}

// onTransition runs synchronously inside every state machine transition.
func (c *Controller) onTransition(from, to types.ChargingState, reason string) error {
	c.logger.Infof("State %s -> %s (%s)", from, to, reason)
	c.metrics.ObserveTransition(from.String(), to.String(), uint8(to))

	switch to {
	case types.StateConnected:
		if from == types.StateIdle {
			c.sessionID = newSessionID()
		}
	case types.StateIdle, types.StateOff:
		c.sessionID = ""
	}

	c.refreshIndicatorsLocked()
	return nil
}

func newSessionID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// sendStatusLocked sends the periodic command envelope to the peer.
func (c *Controller) sendStatusLocked() error {
	state := c.machine.Current()

	env := protocol.NewCommandEnvelope()
	env.Command.Enable = c.sessionEnabled
	env.Command.CurrentDemand = protocol.CurrentDemandFor(state)
	env.Hardware.MainContactor = c.relayEnabled
	env.Hardware.SourceCurrent = c.maxCurrent

	if !c.sent.valid || c.sent.enable != c.sessionEnabled || c.sent.relay != c.relayEnabled || c.sent.state != state {
		c.logger.Debugf("Sending enable=%v relay=%s state=%s demand=%d",
			c.sessionEnabled, onOff(c.relayEnabled), state, env.Command.CurrentDemand)
		c.sent = sentSnapshot{enable: c.sessionEnabled, relay: c.relayEnabled, state: state, valid: true}
	}

	err := c.transport.Send(protocol.Encode(env))
	c.metrics.ObserveSent(err)
	return err
}

func (c *Controller) publishStatusLocked() {
	if c.publisher == nil {
		return
	}
	status := c.statusLocked()
	if c.hasPublished && c.published.Equal(status) {
		return
	}
	if err := c.publisher.PublishStatus(status); err != nil {
		c.logger.Warnf("Failed to publish status: %v", err)
		return
	}
	c.published = status
	c.hasPublished = true
}

// reportFaultLocked forwards fault changes to the publisher.
func (c *Controller) reportFaultLocked(code int, present bool) {
	if c.faults[code] == present {
		return
	}
	c.faults[code] = present
	if c.publisher == nil {
		return
	}
	if err := c.publisher.ReportFault(code, faultDescriptions[code], present); err != nil {
		c.logger.Warnf("Failed to report fault %d: %v", code, err)
	}
}

// checkPeerLivenessLocked de-energizes the relay when the peer has been silent
// for longer than the peer timeout.
func (c *Controller) checkPeerLivenessLocked() {
	if c.peerTimeout <= 0 || !c.relayEnabled {
		return
	}
	silent := c.now().Sub(c.lastRx)
	if silent <= c.peerTimeout {
		return
	}

	c.logger.Warnf("No peer message for %v, de-energizing relay", silent.Round(time.Millisecond))
	c.metrics.ObserveWatchdogTrip()
	c.reportFaultLocked(FaultPeerTimeout, true)

	state := c.machine.Current()
	if state == types.StateCharging || state == types.StateReady {
		if err := c.machine.StopCharging("peer timeout"); err != nil {
			c.logger.Errorf("Failed to stop charging on peer timeout: %v", err)
		}
	}
	if err := c.setRelayLocked(false); err != nil {
		c.logger.Errorf("Watchdog could not de-energize relay: %v", err)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
