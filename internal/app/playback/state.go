// Package playback provides the playback controller: it turns commands into
// pipeline transitions and pipeline events into responses.
package playback

import (
	"time"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

// Request is an operator intent that the pipeline has not confirmed yet.
type Request uint8

const (
	RequestLoading  Request = 1 << iota // A new source was loaded
	RequestPlaying                      // PLAYING was requested
	RequestPausing                      // PAUSED was requested
	RequestStopping                     // NULL was requested
)

var allRequests = []Request{RequestLoading, RequestPlaying, RequestPausing, RequestStopping}

// String returns the string representation of the request.
func (r Request) String() string {
	switch r {
	case RequestLoading:
		return "LOADING"
	case RequestPlaying:
		return "PLAYING"
	case RequestPausing:
		return "PAUSING"
	case RequestStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

// PendingSet is a set of requests.
type PendingSet uint8

// Add adds r to the set.
func (s *PendingSet) Add(r Request) { *s |= PendingSet(r) }

// Remove removes r from the set.
func (s *PendingSet) Remove(r Request) { *s &^= PendingSet(r) }

// Clear empties the set.
func (s *PendingSet) Clear() { *s = 0 }

// Has reports whether r is in the set.
func (s PendingSet) Has(r Request) bool { return s&PendingSet(r) != 0 }

// Empty reports whether the set is empty.
func (s PendingSet) Empty() bool { return s == 0 }

// Names returns the names of the requests in the set.
func (s PendingSet) Names() []string {
	names := make([]string, 0, len(allRequests))
	for _, r := range allRequests {
		if s.Has(r) {
			names = append(names, r.String())
		}
	}
	return names
}

// UnknownPosition marks a position that could not be determined.
const UnknownPosition time.Duration = -1

// PauseMemo remembers where playback was paused. Position is only
// meaningful while Paused is set.
type PauseMemo struct {
	Paused   bool
	Position time.Duration
}

func (m *PauseMemo) reset() {
	m.Paused = false
	m.Position = UnknownPosition
}

// Snapshot is a point-in-time view of the controller and its pipeline.
type Snapshot struct {
	Result    pipeline.ChangeReturn
	Desired   pipeline.State
	State     pipeline.State
	Pending   pipeline.State
	Requests  []string
	Duration  time.Duration // UnknownPosition if unavailable
	Position  time.Duration // UnknownPosition if unavailable
	URI       string
	Volume    float64
	Recording bool
	Paused    bool
}
