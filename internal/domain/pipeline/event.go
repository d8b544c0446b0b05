package pipeline

// EventType represents a backend notification type.
type EventType int

const (
	EventEOS          EventType = iota // End of stream reached
	EventTag                           // Stream metadata discovered
	EventStateChanged                  // Transport state changed
	EventWarning                       // Non-fatal backend problem
	EventError                         // Fatal backend problem
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventEOS:
		return "eos"
	case EventTag:
		return "tag"
	case EventStateChanged:
		return "state_changed"
	case EventWarning:
		return "warning"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// SourceKind classifies the element that produced a tag event.
type SourceKind string

const (
	SourceUnknown SourceKind = "-"
	SourceAudio   SourceKind = "A"
	SourceVideo   SourceKind = "V"
)

// Tag is a single metadata key/value pair. Value keeps its native type so
// that non-scalar values can be reported by type name.
type Tag struct {
	Key   string
	Value any
}

// Event is a notification delivered on the backend's event channel.
// Only the fields relevant to Type are set.
type Event struct {
	Type EventType

	// EventStateChanged
	Old     State
	New     State
	Pending State

	// EventTag
	Source SourceKind
	Tags   []Tag

	// EventWarning, EventError
	Message string
	Detail  string
}

// StateChanged builds a state change event.
func StateChanged(old, new, pending State) Event {
	return Event{Type: EventStateChanged, Old: old, New: new, Pending: pending}
}
