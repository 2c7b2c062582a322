package core

import (
	"wallbox-service/internal/types"
)

// handlePilotChange reacts to CP transitions reported by the pilot monitor.
func (c *Controller) handlePilotChange(old, next types.PilotState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown.Load() {
		return
	}

	c.pilotState = next
	c.metrics.ObservePilot(next.String())
	c.logger.Infof("Pilot %s -> %s (%s)", old, next, next.Description())

	switch next {
	case types.PilotA:
		// Vehicle unplugged during a session.
		state := c.machine.Current()
		if state == types.StateReady || state == types.StateCharging {
			c.logger.Warnf("Vehicle disconnected while %s, stopping", state)
			if err := c.stopChargingLocked("vehicle disconnected"); err != nil {
				c.logger.Errorf("Failed to stop after disconnect: %v", err)
			}
		}
	case types.PilotF:
		c.logger.Errorf("Pilot fault, de-energizing relay")
		c.reportFaultLocked(FaultPilot, true)
		if err := c.setRelayLocked(false); err != nil {
			c.logger.Errorf("Failed to de-energize relay on pilot fault: %v", err)
		}
		if err := c.machine.EnterError("pilot fault"); err != nil {
			c.logger.Errorf("Failed to enter error state: %v", err)
		}
	}

	c.publishStatusLocked()
}
