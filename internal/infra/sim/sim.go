// Package sim provides a simulated media pipeline. It follows the transport
// state rules of a real backend without decoding anything, which makes it
// usable for tests and for running the remote without an audio device.
package sim

import (
	"os"
	"path"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

const eventBuffer = 256

// Config represents simulated pipeline settings.
type Config struct {
	DurationSec int    `mapstructure:"duration_sec" default:"180" validate:"gte=0"`
	Live        bool   `mapstructure:"live"`
	Title       string `mapstructure:"title"`
}

// Pipeline is a simulated pipeline.
type Pipeline struct {
	mu sync.Mutex

	cfg Config
	now func() time.Time

	state   pipeline.State
	pending pipeline.State
	stalled bool

	uri    string
	volume float64
	sink   pipeline.Sink

	// Playback position: base plus the time spent PLAYING since startedAt.
	base      time.Duration
	startedAt time.Time
	eosSent   bool

	events chan pipeline.Event
	closed bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a simulated pipeline with a default monitor sink installed.
func New(cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		now:     time.Now,
		state:   pipeline.StateNull,
		pending: pipeline.StateVoidPending,
		volume:  1.0,
		sink:    newMonitorSink("autoaudiosink"),
		events:  make(chan pipeline.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetState requests a transition. Transitions complete immediately and
// emit one state change event per step, unless the pipeline is stalled.
func (p *Pipeline) SetState(target pipeline.State) pipeline.ChangeReturn {
	p.mu.Lock()
	defer p.mu.Unlock()

	if target == pipeline.StateVoidPending {
		return pipeline.ChangeFailure
	}
	if target >= pipeline.StatePaused && p.uri == "" {
		p.emit(pipeline.Event{Type: pipeline.EventError, Message: "No URI set"})
		return pipeline.ChangeFailure
	}

	if p.stalled && target != pipeline.StateNull {
		p.pending = target
		return pipeline.ChangeAsync
	}

	p.pending = pipeline.StateVoidPending
	p.transition(target)
	if p.cfg.Live && target == pipeline.StatePaused {
		return pipeline.ChangeNoPreroll
	}
	return pipeline.ChangeSuccess
}

// GetState returns the current and pending states. A stalled transition
// reports ChangeAsync without waiting.
func (p *Pipeline) GetState(time.Duration) (pipeline.ChangeReturn, pipeline.State, pipeline.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending != pipeline.StateVoidPending {
		return pipeline.ChangeAsync, p.state, p.pending
	}
	return pipeline.ChangeSuccess, p.state, pipeline.StateVoidPending
}

// Stall makes subsequent transitions (except to NULL) stay pending until
// Release is called, the way a network source does while buffering.
func (p *Pipeline) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stalled = true
}

// Release completes the pending transition and stops stalling.
func (p *Pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stalled = false
	if p.pending == pipeline.StateVoidPending {
		return
	}
	target := p.pending
	p.pending = pipeline.StateVoidPending
	p.transition(target)
}

// transition walks one step at a time towards target.
func (p *Pipeline) transition(target pipeline.State) {
	for p.state != target {
		old := p.state
		next := old + 1
		if target < old {
			next = old - 1
		}
		p.enter(old, next)

		pending := target
		if next == target {
			pending = pipeline.StateVoidPending
		}
		p.emit(pipeline.StateChanged(old, next, pending))
	}
}

func (p *Pipeline) enter(old, next pipeline.State) {
	now := p.now()

	switch {
	case old == pipeline.StatePlaying:
		p.base = p.positionLocked(now)
	case next == pipeline.StatePlaying:
		p.startedAt = now
	}

	if next <= pipeline.StateReady {
		p.base = 0
		p.eosSent = false
		if rec, ok := p.sink.(*recordingSink); ok {
			rec.finish()
		}
	}

	if old == pipeline.StateReady && next == pipeline.StatePaused {
		if rec, ok := p.sink.(*recordingSink); ok {
			rec.start()
		}
		p.emit(pipeline.Event{
			Type:   pipeline.EventTag,
			Source: pipeline.SourceAudio,
			Tags: []pipeline.Tag{
				{Key: "title", Value: p.title()},
				{Key: "bitrate", Value: uint32(1411200)},
			},
		})
	}

	p.state = next
	zlog.Debug().Msgf("sim: %s -> %s", old, next)
}

func (p *Pipeline) title() string {
	if p.cfg.Title != "" {
		return p.cfg.Title
	}
	return path.Base(p.uri)
}

func (p *Pipeline) duration() (time.Duration, bool) {
	if p.cfg.Live || p.state < pipeline.StatePaused {
		return 0, false
	}
	return time.Duration(p.cfg.DurationSec) * time.Second, true
}

func (p *Pipeline) positionLocked(now time.Time) time.Duration {
	pos := p.base
	if p.state == pipeline.StatePlaying {
		pos += now.Sub(p.startedAt)
	}
	if d, ok := p.duration(); ok && pos > d {
		pos = d
	}
	return pos
}

// QueryDuration returns the media duration once prerolled.
func (p *Pipeline) QueryDuration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration()
}

// QueryPosition returns the playback position. Reaching the end while
// PLAYING emits end-of-stream once.
func (p *Pipeline) QueryPosition() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state < pipeline.StatePaused {
		return 0, false
	}
	pos := p.positionLocked(p.now())
	if d, ok := p.duration(); ok && p.state == pipeline.StatePlaying && pos >= d && !p.eosSent {
		p.eosSent = true
		p.emit(pipeline.Event{Type: pipeline.EventEOS})
	}
	return pos, true
}

// Seek moves the position. Live sources and unprerolled pipelines refuse.
func (p *Pipeline) Seek(pos time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.duration()
	if !ok || pos < 0 || pos > d {
		return false
	}
	p.base = pos
	p.startedAt = p.now()
	p.eosSent = false
	return true
}

// URI returns the source URI.
func (p *Pipeline) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

// SetURI binds the source URI.
func (p *Pipeline) SetURI(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uri = uri
}

// Volume returns the output volume.
func (p *Pipeline) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sets the output volume.
func (p *Pipeline) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
}

// AudioSink returns the active audio sink.
func (p *Pipeline) AudioSink() pipeline.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

// SetAudioSink installs s as the active audio sink.
func (p *Pipeline) SetAudioSink(s pipeline.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// NewRecordingSink creates a recording sink. bitDepth is 0, 16, 24 or 32.
func (p *Pipeline) NewRecordingSink(bitDepth int) (pipeline.RecordingSink, error) {
	switch bitDepth {
	case 0, 16, 24, 32:
	default:
		return nil, errors.Newf("unsupported bit depth %d", bitDepth)
	}
	return &recordingSink{
		monitorSink: newMonitorSink("record-sink"),
		bitDepth:    bitDepth,
	}, nil
}

// NewAudioSink creates a monitor sink.
func (p *Pipeline) NewAudioSink() (pipeline.Sink, error) {
	return newMonitorSink("autoaudiosink"), nil
}

// Events returns the event channel.
func (p *Pipeline) Events() <-chan pipeline.Event {
	return p.events
}

// Close closes the event channel.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	return nil
}

// State returns the current transport state.
func (p *Pipeline) State() pipeline.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Finish emits end-of-stream as if the media ran out.
func (p *Pipeline) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eosSent = true
	p.emit(pipeline.Event{Type: pipeline.EventEOS})
}

// Fail emits a backend error.
func (p *Pipeline) Fail(message, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(pipeline.Event{Type: pipeline.EventError, Message: message, Detail: detail})
}

// Warn emits a backend warning.
func (p *Pipeline) Warn(message, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(pipeline.Event{Type: pipeline.EventWarning, Message: message, Detail: detail})
}

func (p *Pipeline) emit(ev pipeline.Event) {
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		zlog.Warn().Msgf("sim: event buffer full, dropping %s", ev.Type)
	}
}

type monitorSink struct {
	name string
}

func newMonitorSink(name string) *monitorSink {
	return &monitorSink{name: name}
}

func (s *monitorSink) Name() string { return s.name }

func (s *monitorSink) NegotiatedCaps() []pipeline.Caps {
	return []pipeline.Caps{{
		Name: "audio/x-raw-int",
		Fields: []pipeline.CapsField{
			{Key: "rate", Value: 44100},
			{Key: "channels", Value: 2},
			{Key: "width", Value: 16},
			{Key: "depth", Value: 16},
		},
	}}
}

// recordingSink creates its capture file when data starts flowing.
type recordingSink struct {
	*monitorSink
	bitDepth int
	location string
	file     *os.File
}

func (s *recordingSink) Location() string { return s.location }

func (s *recordingSink) SetLocation(path string) {
	s.finish()
	s.location = path
}

func (s *recordingSink) start() {
	if s.location == "" || s.file != nil {
		return
	}
	f, err := os.Create(s.location)
	if err != nil {
		zlog.Error().Msgf("sim: failed to create %s: %v", s.location, err)
		return
	}
	s.file = f
}

func (s *recordingSink) finish() {
	if s.file == nil {
		return
	}
	if err := s.file.Close(); err != nil {
		zlog.Error().Msgf("sim: failed to close %s: %v", s.location, err)
	}
	s.file = nil
}
