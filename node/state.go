package node

import (
	"encoding/json"
)

// State is a node lifecycle state.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	// StateSuspended is a running consumer whose worker waits on an empty mailbox.
	StateSuspended
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Alive reports whether the state counts as running.
func (s State) Alive() bool {
	return s == StateRunning || s == StateSuspended
}

// MarshalJSON renders the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
