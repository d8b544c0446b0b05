package playback

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/app/command"
	"github.com/emacsmirror/gaplay/internal/app/recording"
	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
	"github.com/emacsmirror/gaplay/internal/domain/playlist"
)

// Config holds controller configuration.
type Config struct {
	StateTimeout time.Duration // Bound for pipeline state queries
	SeekSettle   time.Duration // Wait for PAUSED before seeking on resume
	FetchTimeout time.Duration // Bound for remote playlist retrieval
	Debug        bool          // Verbose INFO, WARNING and ERROR responses
}

func (c *Config) setDefaults() {
	if c.StateTimeout <= 0 {
		c.StateTimeout = 500 * time.Millisecond
	}
	if c.SeekSettle <= 0 {
		c.SeekSettle = 200 * time.Millisecond
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
}

// Fetcher retrieves playlists.
type Fetcher interface {
	Fetch(ctx context.Context, location string, force bool) (*playlist.Playlist, error)
}

// Controller drives the pipeline.
//
// Controller is not safe for concurrent use. Dispatch, HandleEvent,
// WatchPosition and Snapshot must all be called from one goroutine.
type Controller struct {
	config  Config
	pipe    pipeline.Pipeline
	router  *recording.Router
	fetcher Fetcher
	out     response.Emitter

	requests PendingSet
	memo     PauseMemo
	watch    positionWatch
	quitting bool

	randIntN func(n int) int
}

// NewController creates a new playback controller.
func NewController(
	config Config,
	pipe pipeline.Pipeline,
	router *recording.Router,
	fetcher Fetcher,
	out response.Emitter,
) *Controller {
	config.setDefaults()
	return &Controller{
		config:   config,
		pipe:     pipe,
		router:   router,
		fetcher:  fetcher,
		out:      out,
		memo:     PauseMemo{Position: UnknownPosition},
		watch:    newPositionWatch(),
		randIntN: rand.IntN,
	}
}

// Requests returns the pending requests.
func (c *Controller) Requests() PendingSet {
	return c.requests
}

// Quitting reports whether quit was dispatched.
func (c *Controller) Quitting() bool {
	return c.quitting
}

// Dispatch executes one command. Failures never escape: unknown commands
// and usage problems are reported, anything else clears the pending
// requests and is reported as a dispatch failure.
func (c *Controller) Dispatch(ctx context.Context, cmd command.Command) {
	zlog.Debug().Msgf("playback: dispatch %q requests=%v", cmd.String(), c.requests.Names())

	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: panic while dispatching %q: %v", cmd.String(), r)
			c.fail(cmd, fmt.Errorf("%v", r))
		}
	}()

	op, err := command.Parse(cmd)
	if err != nil {
		var usageErr *command.UsageError
		switch {
		case errors.Is(err, command.ErrUnknownCommand):
			c.emit(response.Errorf("Illegal command - %s", cmd.Name))
		case errors.As(err, &usageErr):
			c.emit(response.New(response.TagError, usageErr.Error()))
		default:
			c.fail(cmd, err)
		}
		return
	}

	if err := c.execute(ctx, op); err != nil {
		c.fail(cmd, err)
	}
}

func (c *Controller) fail(cmd command.Command, err error) {
	c.requests.Clear()
	c.emit(response.Errorf("fail to dispatch_command: %s - %s", err.Error(), cmd.String()))
}

func (c *Controller) execute(ctx context.Context, op command.Op) error {
	switch o := op.(type) {
	case command.Load:
		return c.loadCommand(o.Target)
	case command.Play:
		return c.playCommand()
	case command.Stop:
		c.stopCommand()
	case command.TogglePause:
		return c.togglePause()
	case command.Pause:
		c.pauseCommand()
	case command.Resume:
		return c.resumeCommand()
	case command.Replay:
		c.stopCommand()
		return c.playCommand()
	case command.Record:
		return c.toggleRecord()
	case command.Gain:
		c.gain(o.Level)
	case command.Skip:
		c.seek(time.Duration(o.Seconds)*time.Second, true)
	case command.Jump:
		c.seek(time.Duration(o.Seconds)*time.Second, false)
	case command.LoadHTTP:
		return c.loadHTTP(ctx, o.URL)
	case command.LoadShoutcast:
		return c.loadShoutcast(ctx, o.Index, o.Path)
	case command.State:
		c.stateCommand(o.Key)
	case command.Info:
		c.info()
	case command.Quit:
		c.quit()
	case command.Error:
		c.emit(response.New(response.TagError, o.Message))
	case command.Warning:
		c.emit(response.New(response.TagWarning, o.Message))
	case command.Raise:
		return errors.New(o.Message)
	default:
		return errors.Newf("unhandled command %s", op)
	}
	return nil
}

func (c *Controller) emit(r response.Response) {
	c.out.Emit(r)
}

func (c *Controller) warn(format string, args ...any) {
	c.emit(response.Warningf(format, args...))
}

// quit stops playback and marks the controller as quitting. Calling it
// again only stops again.
func (c *Controller) quit() {
	c.stopCommand()
	c.quitting = true
}

func (c *Controller) gain(level *float64) {
	if level != nil {
		c.pipe.SetVolume(*level)
	}
	c.emit(response.New(response.TagGain, c.pipe.Volume()))
}

func (c *Controller) stateCommand(key string) {
	if key != "" {
		state, ok := pipeline.ParseState(key)
		if ok {
			ret := c.pipe.SetState(state)
			zlog.Debug().Msgf("playback: set_state %s returned %s", state, ret)
		} else {
			c.emit(response.Errorf("No state key - %s", key))
		}
	}
	c.showState()
}

func (c *Controller) showState() {
	ret, cur, pending := c.pipe.GetState(c.config.StateTimeout)
	c.emit(response.New(response.TagState, ret, cur, pending))
}

func (c *Controller) info() {
	uri := c.pipe.URI()
	if uri == "" {
		uri = "none"
	}
	c.emit(response.New(response.TagInfo,
		fmt.Sprintf("uri=%s gain=%s", uri, pipeline.FormatFloat(c.pipe.Volume()))))

	if c.config.Debug {
		c.showState()
		fields := make([]any, 0, 4)
		for _, name := range c.requests.Names() {
			fields = append(fields, name)
		}
		c.emit(response.New(response.TagReqs, fields...))
	}
}

// Snapshot reports the current controller and pipeline state.
func (c *Controller) Snapshot() Snapshot {
	ret, cur, pending := c.pipe.GetState(c.config.StateTimeout)

	s := Snapshot{
		Result:    ret,
		State:     cur,
		Pending:   pending,
		Desired:   cur,
		Requests:  c.requests.Names(),
		Duration:  UnknownPosition,
		Position:  UnknownPosition,
		URI:       c.pipe.URI(),
		Volume:    c.pipe.Volume(),
		Recording: c.router.IsRecording(),
		Paused:    c.memo.Paused,
	}

	switch {
	case c.requests.Has(RequestPausing):
		s.Desired = pipeline.StatePaused
	case c.requests.Has(RequestPlaying), c.requests.Has(RequestLoading):
		s.Desired = pipeline.StatePlaying
	case c.requests.Has(RequestStopping):
		s.Desired = pipeline.StateNull
	}

	if d, ok := c.pipe.QueryDuration(); ok {
		s.Duration = d
	}
	if p, ok := c.pipe.QueryPosition(); ok {
		s.Position = p
	}
	return s
}
