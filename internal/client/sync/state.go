package sync

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when Sync is called while a cycle is running
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrInvalidTransition indicates a coordinator state change not allowed by the transition table
var ErrInvalidTransition = errors.New("invalid sync state transition")

// State is the coordinator state
type State int

const (
	StateIdle State = iota
	StatePulling
	StateMerging
	StatePushing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateMerging:
		return "merging"
	case StatePushing:
		return "pushing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists allowed state changes; any state may fall back to Idle
var transitions = map[State][]State{
	StateIdle:    {StatePulling},
	StatePulling: {StateMerging, StateIdle},
	StateMerging: {StatePulling, StatePushing, StateIdle},
	StatePushing: {StateIdle},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
