// Package pipeline defines the contract between the playback controller and
// the media backend that actually decodes and renders audio.
package pipeline

import "strings"

// State represents the backend's coarse transport state.
type State int

const (
	StateVoidPending State = iota // No pending transition
	StateNull                     // Nothing allocated
	StateReady                    // Resources allocated, no data flowing
	StatePaused                   // Prerolled, clock stopped
	StatePlaying                  // Clock running
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return "UNKNOWN"
	}
}

// ParseState resolves a case-insensitive name of a state that can be
// requested. VOID_PENDING only appears in reports and is not accepted.
func ParseState(name string) (State, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NULL":
		return StateNull, true
	case "READY":
		return StateReady, true
	case "PAUSED":
		return StatePaused, true
	case "PLAYING":
		return StatePlaying, true
	default:
		return 0, false
	}
}

// ChangeReturn is the result of a state change request or query.
type ChangeReturn int

const (
	ChangeSuccess   ChangeReturn = iota // Transition completed
	ChangeAsync                         // Transition will complete later
	ChangeFailure                       // Transition failed
	ChangeNoPreroll                     // Live source, no preroll possible
)

// String returns the string representation of the change result.
func (r ChangeReturn) String() string {
	switch r {
	case ChangeSuccess:
		return "SUCCESS"
	case ChangeAsync:
		return "ASYNC"
	case ChangeFailure:
		return "FAILURE"
	case ChangeNoPreroll:
		return "PREROLL"
	default:
		return "UNKNOWN"
	}
}
