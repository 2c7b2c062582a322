package core

import (
	"wallbox-service/internal/hardware"
	"wallbox-service/internal/types"
)

type ledPattern struct {
	green, yellow, red bool
	valid              bool
}

// patternFor maps the controller state to the indicator LEDs. All LEDs are
// dark while the session is disabled.
func patternFor(state types.ChargingState, enabled bool) ledPattern {
	if !enabled {
		return ledPattern{valid: true}
	}
	switch state {
	case types.StateIdle, types.StateStop, types.StateFinished:
		return ledPattern{green: true, valid: true}
	case types.StateConnected, types.StateIdentification, types.StateReady, types.StateCharging:
		return ledPattern{yellow: true, valid: true}
	default: // Off and Error
		return ledPattern{red: true, valid: true}
	}
}

// refreshIndicatorsLocked writes the LEDs when the pattern changed. A failed
// write is retried on the next refresh.
func (c *Controller) refreshIndicatorsLocked() {
	want := patternFor(c.machine.Current(), c.sessionEnabled)
	if c.leds == want {
		return
	}

	writes := []struct {
		line string
		on   bool
	}{
		{hardware.LineLedGreen, want.green},
		{hardware.LineLedYellow, want.yellow},
		{hardware.LineLedRed, want.red},
	}
	for _, w := range writes {
		if err := c.io.WriteDigitalOutput(w.line, w.on); err != nil {
			c.logger.Warnf("Failed to set %s: %v", w.line, err)
			c.leds = ledPattern{}
			return
		}
	}
	c.leds = want
}
