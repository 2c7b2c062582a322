package core

import (
	"fmt"
	"strings"
)

// HandleCommand executes an operator command received from the command list.
func (c *Controller) HandleCommand(command string) error {
	cmd := strings.ToLower(strings.TrimSpace(command))
	c.logger.Debugf("Handling operator command: %s", cmd)

	switch cmd {
	case "start":
		return c.StartCharging()
	case "stop":
		return c.StopCharging()
	case "pause":
		return c.PauseCharging()
	case "resume":
		return c.ResumeCharging()
	case "enable":
		c.EnableSession()
		return nil
	case "disable":
		c.DisableSession()
		return nil
	case "reset":
		return c.Reset()
	case "relay:on":
		return c.SetRelay(true)
	case "relay:off":
		return c.SetRelay(false)
	default:
		return fmt.Errorf("invalid command: %q", command)
	}
}

// HandleButton toggles the session enable on each press of the local button.
func (c *Controller) HandleButton(channel string, pressed bool) error {
	if !pressed {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown.Load() {
		return ErrShutdown
	}

	c.logger.Infof("Button %s pressed", channel)
	if c.sessionEnabled {
		c.disableLocked("button")
	} else {
		c.enableLocked("button")
	}
	c.publishStatusLocked()
	return nil
}
