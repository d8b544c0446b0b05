package command

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrUnknownCommand is returned by Parse for names outside the vocabulary.
var ErrUnknownCommand = errors.New("unknown command")

// MaxSeekSeconds bounds skip/jump arguments so that they fit a time.Duration.
const MaxSeekSeconds = int64(math.MaxInt64 / int64(time.Second))

// UsageError reports a missing or malformed command argument.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Usage
}

func usage(u string) error {
	return &UsageError{Usage: u}
}

// Op is a parsed command, one type per command.
type Op interface {
	opMarker()
	String() string
}

// Load loads and plays a local path or URI.
type Load struct{ Target string }

// Play (re)starts the current source.
type Play struct{}

// Stop stops playback.
type Stop struct{}

// TogglePause pauses or resumes depending on the observed state.
type TogglePause struct{}

// Pause is the explicit pause (_pause).
type Pause struct{}

// Resume is the explicit resume (_resume).
type Resume struct{}

// Replay stops and plays again.
type Replay struct{}

// Record toggles recording.
type Record struct{}

// Gain reports the volume, setting it first when Level is non-nil.
type Gain struct{ Level *float64 }

// Skip seeks relative to the current position.
type Skip struct{ Seconds int64 }

// Jump seeks to an absolute position.
type Jump struct{ Seconds int64 }

// LoadHTTP lists a remote playlist, or loads the URL as a stream.
type LoadHTTP struct{ URL string }

// LoadShoutcast loads entry Index of the playlist at Path.
type LoadShoutcast struct {
	Index int
	Path  string
}

// State requests a raw backend state (when Key is set) and reports it.
type State struct{ Key string }

// Info reports the current source and volume.
type Info struct{}

// Quit stops playback and ends the session.
type Quit struct{}

// Error echoes an ERROR response.
type Error struct{ Message string }

// Warning echoes a WARNING response.
type Warning struct{ Message string }

// Raise fails the dispatch on purpose.
type Raise struct{ Message string }

func (Load) opMarker()          {}
func (Play) opMarker()          {}
func (Stop) opMarker()          {}
func (TogglePause) opMarker()   {}
func (Pause) opMarker()         {}
func (Resume) opMarker()        {}
func (Replay) opMarker()        {}
func (Record) opMarker()        {}
func (Gain) opMarker()          {}
func (Skip) opMarker()          {}
func (Jump) opMarker()          {}
func (LoadHTTP) opMarker()      {}
func (LoadShoutcast) opMarker() {}
func (State) opMarker()         {}
func (Info) opMarker()          {}
func (Quit) opMarker()          {}
func (Error) opMarker()         {}
func (Warning) opMarker()       {}
func (Raise) opMarker()         {}

func (o Load) String() string      { return "Load(" + o.Target + ")" }
func (Play) String() string        { return "Play()" }
func (Stop) String() string        { return "Stop()" }
func (TogglePause) String() string { return "TogglePause()" }
func (Pause) String() string       { return "Pause()" }
func (Resume) String() string      { return "Resume()" }
func (Replay) String() string      { return "Replay()" }
func (Record) String() string      { return "Record()" }
func (o Skip) String() string      { return fmt.Sprintf("Skip(%d)", o.Seconds) }
func (o Jump) String() string      { return fmt.Sprintf("Jump(%d)", o.Seconds) }
func (o LoadHTTP) String() string  { return "LoadHTTP(" + o.URL + ")" }
func (o State) String() string     { return "State(" + o.Key + ")" }
func (Info) String() string        { return "Info()" }
func (Quit) String() string        { return "Quit()" }
func (o Error) String() string     { return "Error(" + o.Message + ")" }
func (o Warning) String() string   { return "Warning(" + o.Message + ")" }
func (o Raise) String() string     { return "Raise(" + o.Message + ")" }
func (o LoadShoutcast) String() string {
	return fmt.Sprintf("LoadShoutcast(%d, %s)", o.Index, o.Path)
}
func (o Gain) String() string {
	if o.Level == nil {
		return "Gain()"
	}
	return fmt.Sprintf("Gain(%g)", *o.Level)
}

// Parse converts a raw command into its typed form. Unknown names return
// ErrUnknownCommand; bad arguments return a *UsageError.
func Parse(c Command) (Op, error) {
	arg := strings.TrimSpace(strings.Join(c.Args, " "))

	switch c.Name {
	case NameLoad:
		if arg == "" {
			return nil, usage("load URL|FILEPATH")
		}
		return Load{Target: arg}, nil
	case NamePlay:
		return Play{}, nil
	case NameStop:
		return Stop{}, nil
	case NamePause:
		return TogglePause{}, nil
	case NameExplicitPause:
		return Pause{}, nil
	case NameExplicitResume:
		return Resume{}, nil
	case NameReplay:
		return Replay{}, nil
	case NameRecord:
		return Record{}, nil
	case NameGain:
		if arg == "" {
			return Gain{}, nil
		}
		level, err := strconv.ParseFloat(arg, 64)
		if err != nil || math.IsNaN(level) || level < 0 || level > 10 {
			return nil, usage("gain [LEVEL]")
		}
		return Gain{Level: &level}, nil
	case NameSkip:
		sec, ok := parseSeconds(arg)
		if !ok || sec == 0 {
			return nil, usage("skip SEC")
		}
		return Skip{Seconds: sec}, nil
	case NameJump:
		sec, ok := parseSeconds(arg)
		if !ok {
			return nil, usage("jump SEC")
		}
		return Jump{Seconds: sec}, nil
	case NameLoadHTTP:
		if arg == "" {
			return nil, usage("load-http URL")
		}
		return LoadHTTP{URL: arg}, nil
	case NameLoadShoutcast:
		return parseShoutcast(arg)
	case NameState:
		return State{Key: arg}, nil
	case NameInfo:
		return Info{}, nil
	case NameQuit:
		return Quit{}, nil
	case NameError:
		return Error{Message: arg}, nil
	case NameWarning:
		return Warning{Message: arg}, nil
	case NameRaise:
		return Raise{Message: arg}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "%q", c.Name)
	}
}

// parseSeconds parses an arbitrary-size integer and saturates it to
// ±MaxSeekSeconds.
func parseSeconds(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, false
	}
	limit := big.NewInt(MaxSeekSeconds)
	switch {
	case n.Cmp(limit) > 0:
		return MaxSeekSeconds, true
	case n.Cmp(new(big.Int).Neg(limit)) < 0:
		return -MaxSeekSeconds, true
	default:
		return n.Int64(), true
	}
}

func parseShoutcast(arg string) (Op, error) {
	const u = "load-shoutcast N PATH"
	fields := strings.SplitN(arg, " ", 2)
	if len(fields) != 2 {
		return nil, usage(u)
	}
	index, err := strconv.Atoi(fields[0])
	if err != nil {
		return nil, usage(u)
	}
	path := strings.TrimSpace(fields[1])
	if path == "" {
		return nil, usage(u)
	}
	return LoadShoutcast{Index: index, Path: path}, nil
}
