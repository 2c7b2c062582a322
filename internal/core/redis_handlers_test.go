package core

import (
	"errors"
	"testing"

	"wallbox-service/internal/types"
)

func TestHandleCommand(t *testing.T) {
	rig := newTestController(t)

	steps := []struct {
		cmd   string
		state types.ChargingState
	}{
		{"start", types.StateCharging},
		{"pause", types.StateReady},
		{" Resume\n", types.StateCharging},
		{"stop", types.StateIdle},
	}
	for _, s := range steps {
		if err := rig.ctrl.HandleCommand(s.cmd); err != nil {
			t.Fatalf("HandleCommand(%q) failed: %v", s.cmd, err)
		}
		if rig.ctrl.State() != s.state {
			t.Errorf("After %q expected %s, got %s", s.cmd, s.state, rig.ctrl.State())
		}
	}

	if err := rig.ctrl.HandleCommand("relay:on"); err != nil {
		t.Fatalf("relay:on failed: %v", err)
	}
	if !rig.ctrl.Status().RelayEnabled {
		t.Error("Expected relay on")
	}
	if err := rig.ctrl.HandleCommand("relay:off"); err != nil {
		t.Fatalf("relay:off failed: %v", err)
	}

	if err := rig.ctrl.HandleCommand("disable"); err != nil {
		t.Fatalf("disable failed: %v", err)
	}
	if err := rig.ctrl.HandleCommand("start"); !errors.Is(err, ErrDisabled) {
		t.Errorf("Expected ErrDisabled, got %v", err)
	}
	if err := rig.ctrl.HandleCommand("enable"); err != nil {
		t.Fatalf("enable failed: %v", err)
	}
	if err := rig.ctrl.HandleCommand("reset"); err == nil {
		t.Error("Expected reset outside error to fail")
	}
	if err := rig.ctrl.HandleCommand("launch"); err == nil {
		t.Error("Expected invalid command error")
	}
}

func TestHandleButtonToggles(t *testing.T) {
	rig := newTestController(t)

	if err := rig.ctrl.HandleButton("button", true); err != nil {
		t.Fatalf("HandleButton failed: %v", err)
	}
	if rig.ctrl.Status().SessionEnabled {
		t.Error("Expected first press to disable")
	}

	rig.ctrl.HandleButton("button", false)
	if rig.ctrl.Status().SessionEnabled {
		t.Error("Release must not toggle")
	}

	rig.ctrl.HandleButton("button", true)
	if !rig.ctrl.Status().SessionEnabled {
		t.Error("Expected second press to enable")
	}
}
