package core

import (
	"errors"

	"wallbox-service/internal/pilot"
	"wallbox-service/internal/protocol"
	"wallbox-service/internal/types"
)

// HandleMessage processes one inbound datagram. Remote CP messages go to the
// pilot monitor; state envelopes are applied under the peer sequencing policy.
// Malformed datagrams are dropped and their decode error returned.
func (c *Controller) HandleMessage(b []byte) error {
	if pilot.IsPilotMessage(b) {
		if r, ok := c.pilot.(remotePilot); ok {
			r.HandleMessage(b)
		} else {
			c.logger.Debugf("Ignoring CP message, pilot source is not remote")
		}
		return nil
	}

	msg, err := protocol.Decode(b)
	if err != nil {
		kind := "unknown type"
		if errors.Is(err, protocol.ErrTooShort) {
			kind = "too short"
		}
		c.metrics.ObserveDecodeError(kind)
		c.decodeLog.Do(func() {
			c.logger.Warnf("Dropping malformed datagram: %v", err)
		})
		return err
	}

	env, ok := msg.(*protocol.StateEnvelope)
	if !ok {
		c.logger.Debugf("Ignoring %s message", msg.MsgType())
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown.Load() {
		return ErrShutdown
	}

	c.lastRx = c.now()
	c.metrics.ObserveReceived()
	c.reportFaultLocked(FaultPeerTimeout, false)

	if c.applyPeerLocked(env) {
		if err := c.sendStatusLocked(); err != nil {
			c.logger.Warnf("Failed to send status update: %v", err)
		}
		c.publishStatusLocked()
	}
	return nil
}

// applyPeerLocked applies enable, intent and contactor in that order, each
// only when it changed since the previous message.
func (c *Controller) applyPeerLocked(env *protocol.StateEnvelope) bool {
	next := peerSnapshot{
		enable:    env.Hardware.SourceEnable,
		state:     env.State.State,
		contactor: env.Hardware.MainContactor,
	}
	prev := c.peer
	changed := false

	if !next.state.Valid() {
		c.metrics.ObserveDecodeError("invalid state")
		c.decodeLog.Do(func() {
			c.logger.Warnf("Ignoring invalid peer state %d", uint8(next.state))
		})
		next.state = prev.state
	}

	if next.enable != prev.enable {
		changed = true
		c.logger.Infof("Peer enable %v -> %v", prev.enable, next.enable)
		if next.enable && !c.sessionEnabled {
			c.enableLocked("peer")
		} else if !next.enable && c.sessionEnabled {
			c.disableLocked("peer")
		}
	}

	if next.state != prev.state {
		changed = true
		c.logger.Infof("Peer state %s -> %s", prev.state, next.state)
		c.applyPeerIntentLocked(next.state)
	}

	if next.contactor != prev.contactor {
		changed = true
		c.logger.Infof("Peer contactor %s -> %s", onOff(prev.contactor), onOff(next.contactor))
		c.applyPeerContactorLocked(next.contactor)
	}

	c.peer = next
	return changed
}

// applyPeerIntentLocked treats the peer's state as an intent. Power transfer
// is only started when the previous intent was an accepted ready, which needs
// the relay already energized. A rejected ready does not arm charging.
func (c *Controller) applyPeerIntentLocked(intent types.ChargingState) {
	state := c.machine.Current()
	armed := c.peerReady
	c.peerReady = false

	switch intent {
	case types.StateIdle:
		c.returnToIdleLocked("peer idle")

	case types.StateReady:
		switch {
		case !c.relayEnabled:
			c.rejectPeer(intent, "relay must be on first")
		case state != types.StateIdle:
			c.rejectPeer(intent, "local state is "+state.String()+", must be idle")
		default:
			c.peerReady = true
			c.logger.Infof("Peer ready, prepared for charging")
		}

	case types.StateCharging:
		switch {
		case state == types.StateCharging:
		case !c.relayEnabled:
			c.rejectPeer(intent, "relay must be on")
		case state != types.StateIdle || !armed:
			c.rejectPeer(intent, "sequence must be idle -> accepted ready -> charging")
		case !c.sessionEnabled:
			c.rejectPeer(intent, ErrDisabled.Error())
		default:
			if err := c.machine.StartCharging("peer charging"); err != nil {
				c.logger.Errorf("Failed to start charging for peer: %v", err)
			}
		}

	case types.StateStop:
		if c.machine.IsCharging() {
			if err := c.machine.StopCharging("peer stop"); err != nil {
				c.logger.Errorf("Failed to stop charging for peer: %v", err)
			}
		}

	default:
		c.logger.Debugf("Peer state %s carries no intent", intent)
	}
}

func (c *Controller) rejectPeer(intent types.ChargingState, why string) {
	c.metrics.ObservePeerRejection(intent.String())
	c.logger.Warnf("%v: peer %s rejected: %s", ErrIllegalPeerSequence, intent, why)
}

// returnToIdleLocked brings the machine back to Idle along legal edges. The
// relay is left to the peer's contactor flag. Error is only left by Reset.
func (c *Controller) returnToIdleLocked(reason string) {
	var err error
	switch state := c.machine.Current(); state {
	case types.StateIdle:
		return
	case types.StateReady, types.StateCharging:
		err = c.machine.StopCharging(reason)
	case types.StateStop:
		if err = c.machine.TransitionTo(types.StateFinished, reason); err == nil {
			err = c.machine.TransitionTo(types.StateIdle, reason)
		}
	case types.StateError:
		c.logger.Warnf("Staying in error state, reset required")
		return
	default:
		err = c.machine.TransitionTo(types.StateIdle, reason)
	}
	if err != nil {
		c.logger.Errorf("Failed to return to idle: %v", err)
	}
}

// applyPeerContactorLocked follows the peer's contactor flag. A disabled
// session refuses to energize.
func (c *Controller) applyPeerContactorLocked(on bool) {
	if on && !c.sessionEnabled {
		c.logger.Warnf("Peer contactor on rejected: %v", ErrDisabled)
		return
	}
	if on == c.relayEnabled {
		return
	}
	if err := c.setRelayLocked(on); err != nil {
		c.logger.Errorf("Failed to apply peer contactor: %v", err)
	}
}
