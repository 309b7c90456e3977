package engine

import (
	"fmt"
)

// State is the engine's single mode. Capture and playback are mutually
// exclusive, so at most one of them is ever active.
type State int

const (
	StateIdle State = iota
	StateRecording
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// validTransitions lists the allowed state changes. Switching between
// recording and playing always passes through idle.
var validTransitions = map[State][]State{
	StateIdle:      {StateRecording, StatePlaying},
	StateRecording: {StateIdle},
	StatePlaying:   {StateIdle},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
