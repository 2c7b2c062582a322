package core

import (
	"errors"
	"fmt"

	"wallbox-service/internal/types"
)

var (
	ErrDisabled            = errors.New("session disabled")
	ErrHardwareWrite       = errors.New("hardware write failed")
	ErrIllegalPeerSequence = errors.New("illegal peer sequence")
	ErrShutdown            = errors.New("controller shut down")
)

// HardwareWriteError matches ErrHardwareWrite and unwraps to the driver error.
type HardwareWriteError struct {
	Line  string
	Value bool
	Err   error
}

func (e *HardwareWriteError) Error() string {
	return fmt.Sprintf("%v: %s=%v: %v", ErrHardwareWrite, e.Line, e.Value, e.Err)
}

func (e *HardwareWriteError) Is(target error) bool {
	return target == ErrHardwareWrite
}

func (e *HardwareWriteError) Unwrap() error {
	return e.Err
}

// OperationError is returned by failed controller operations. The requested
// state was not reached; State is where the controller is now.
type OperationError struct {
	Op        string
	State     types.ChargingState
	Requested types.ChargingState
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s (state %s, requested %s): %v", e.Op, e.State, e.Requested, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Fault codes reported through the StatusPublisher.
const (
	FaultPeerTimeout = 1
	FaultPilot       = 2
	FaultRelayWrite  = 3
)

var faultDescriptions = map[int]string{
	FaultPeerTimeout: "peer silent, relay de-energized",
	FaultPilot:       "control pilot fault",
	FaultRelayWrite:  "relay write failed",
}
