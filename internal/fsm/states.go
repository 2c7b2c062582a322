package fsm

import "wallbox-service/internal/types"

// transitions is the legal edge table. Error is reachable from everywhere and
// only Reset (Error -> Idle) or a power-down (Error -> Off) leaves it.
var transitions = map[types.ChargingState][]types.ChargingState{
	types.StateOff:            {types.StateIdle, types.StateError},
	types.StateIdle:           {types.StateConnected, types.StateOff, types.StateError},
	types.StateConnected:      {types.StateIdentification, types.StateIdle, types.StateError},
	types.StateIdentification: {types.StateReady, types.StateIdle, types.StateError},
	types.StateReady:          {types.StateCharging, types.StateStop, types.StateIdle, types.StateError},
	types.StateCharging:       {types.StateReady, types.StateStop, types.StateError},
	types.StateStop:           {types.StateFinished, types.StateError},
	types.StateFinished:       {types.StateIdle, types.StateError},
	types.StateError:          {types.StateIdle, types.StateOff},
}

// startPath is the walk performed by StartCharging. Starting from any state on
// the path continues with the remaining suffix.
var startPath = []types.ChargingState{
	types.StateIdle,
	types.StateConnected,
	types.StateIdentification,
	types.StateReady,
	types.StateCharging,
}

var stopPath = []types.ChargingState{
	types.StateStop,
	types.StateFinished,
	types.StateIdle,
}

// IsValidTransition reports whether from -> to is an edge of the table.
func IsValidTransition(from, to types.ChargingState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
