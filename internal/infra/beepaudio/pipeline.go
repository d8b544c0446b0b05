package beepaudio

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

const eventBuffer = 256

// Pipeline decodes one media URI and renders it through an Output.
//
// Local files preroll synchronously. Remote streams are opened in the
// background: SetState returns ChangeAsync and the state change events
// follow once the stream is decoding.
type Pipeline struct {
	mu sync.Mutex

	cfg   Config
	out   Output
	fetch Streamer
	rate  beep.SampleRate

	state   pipeline.State
	pending pipeline.State
	gen     uint64
	settled chan struct{}

	uri    string
	volume float64
	sink   pipeline.Sink
	chain  *chain

	ctx    context.Context
	cancel context.CancelFunc

	emu    sync.Mutex
	events chan pipeline.Event
	closed bool
}

// chain is the streamer graph of one prerolled source:
// decoder -> counter -> resampler -> volume -> [tee] -> ctrl -> EOS callback.
type chain struct {
	src     *source
	counter *counter
	gain    *effects.Volume
	ctrl    *beep.Ctrl
	done    atomic.Bool
}

// counter tracks the decoder position in source samples.
type counter struct {
	s   beep.Streamer
	pos int
}

func (c *counter) Stream(samples [][2]float64) (int, bool) {
	n, ok := c.s.Stream(samples)
	c.pos += n
	return n, ok
}

func (c *counter) Err() error { return c.s.Err() }

// New creates a pipeline rendering to out. fetch opens http(s) URIs and may
// be nil when only local files are played.
func New(cfg Config, out Output, fetch Streamer) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	rate := beep.SampleRate(cfg.SampleRate)

	return &Pipeline{
		cfg:     cfg,
		out:     out,
		fetch:   fetch,
		rate:    rate,
		state:   pipeline.StateNull,
		pending: pipeline.StateVoidPending,
		volume:  1.0,
		sink:    &monitorSink{name: "autoaudiosink", rate: rate},
		ctx:     ctx,
		cancel:  cancel,
		events:  make(chan pipeline.Event, eventBuffer),
	}
}

// SetState requests a transition towards target. Any transition still in
// progress is abandoned.
func (p *Pipeline) SetState(target pipeline.State) pipeline.ChangeReturn {
	p.mu.Lock()
	defer p.mu.Unlock()

	if target == pipeline.StateVoidPending {
		return pipeline.ChangeFailure
	}

	p.gen++
	p.settleLocked()

	if target >= pipeline.StatePaused && p.uri == "" && p.state < pipeline.StatePaused {
		p.emit(pipeline.Event{Type: pipeline.EventError, Message: "No URI set"})
		return pipeline.ChangeFailure
	}
	return p.transitionLocked(target)
}

// transitionLocked walks one state at a time towards target.
func (p *Pipeline) transitionLocked(target pipeline.State) pipeline.ChangeReturn {
	for p.state != target {
		old := p.state
		next := old + 1
		if target < old {
			next = old - 1
		}

		if old == pipeline.StateReady && next == pipeline.StatePaused && isRemote(p.uri) {
			p.openAsyncLocked(target)
			return pipeline.ChangeAsync
		}

		if err := p.enterLocked(old, next); err != nil {
			zlog.Debug().Msgf("beepaudio: %s -> %s failed: %v", old, next, err)
			p.emitError(err)
			return pipeline.ChangeFailure
		}
		p.emitStateChanged(old, next, target)
	}

	if p.chain != nil && p.chain.src.live && target == pipeline.StatePaused {
		return pipeline.ChangeNoPreroll
	}
	return pipeline.ChangeSuccess
}

func (p *Pipeline) emitStateChanged(old, next, target pipeline.State) {
	pending := target
	if next == target {
		pending = pipeline.StateVoidPending
	}
	p.emit(pipeline.StateChanged(old, next, pending))
}

// openAsyncLocked opens the remote source in the background and resumes
// the transition to target once it decodes.
func (p *Pipeline) openAsyncLocked(target pipeline.State) {
	gen := p.gen
	uri := p.uri
	p.pending = target
	settled := make(chan struct{})
	p.settled = settled

	go func() {
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.openTimeout())
		defer cancel()
		src, err := openSource(ctx, p.fetch, uri)

		p.mu.Lock()
		defer p.mu.Unlock()

		if p.gen != gen {
			if src != nil {
				src.stream.Close()
			}
			return
		}
		defer p.settleLocked()

		if err != nil {
			p.emitError(errors.Wrap(err, "could not open resource for reading"))
			return
		}

		p.prerollLocked(src)
		p.emitStateChanged(pipeline.StateReady, pipeline.StatePaused, target)
		p.transitionLocked(target)
	}()
}

// settleLocked ends the pending transition and wakes GetState waiters.
func (p *Pipeline) settleLocked() {
	p.pending = pipeline.StateVoidPending
	if p.settled != nil {
		close(p.settled)
		p.settled = nil
	}
}

func (p *Pipeline) enterLocked(old, next pipeline.State) error {
	switch {
	case old == pipeline.StateNull && next == pipeline.StateReady:
		if err := p.out.Init(p.rate, p.rate.N(p.cfg.bufferDuration())); err != nil {
			return errors.Wrap(err, "could not open audio device")
		}

	case old == pipeline.StateReady && next == pipeline.StatePaused:
		ctx, cancel := context.WithTimeout(p.ctx, p.cfg.openTimeout())
		defer cancel()
		src, err := openSource(ctx, p.fetch, p.uri)
		if err != nil {
			return errors.Wrap(err, "could not open resource for reading")
		}
		p.prerollLocked(src)

	case next == pipeline.StatePlaying:
		p.setPausedLocked(false)

	case old == pipeline.StatePlaying:
		p.setPausedLocked(true)

	case old == pipeline.StatePaused && next == pipeline.StateReady:
		p.teardownLocked()
	}

	p.state = next
	zlog.Debug().Msgf("beepaudio: %s -> %s", old, next)
	return nil
}

// prerollLocked builds the chain for src and hands it to the output paused.
func (p *Pipeline) prerollLocked(src *source) {
	c := &chain{src: src, counter: &counter{s: src.stream}}

	var s beep.Streamer = c.counter
	if src.format.SampleRate != p.rate {
		s = beep.Resample(p.cfg.ResampleQuality, src.format.SampleRate, p.rate, s)
	}
	c.gain = &effects.Volume{Streamer: s, Base: 2}
	applyVolume(c.gain, p.volume)
	s = c.gain

	if rec, ok := p.sink.(*recordingSink); ok {
		rec.start()
		s = &tee{s: s, sink: rec}
	}
	c.ctrl = &beep.Ctrl{Streamer: s, Paused: true}

	p.chain = c
	p.state = pipeline.StatePaused

	p.emit(pipeline.Event{
		Type:   pipeline.EventTag,
		Source: pipeline.SourceAudio,
		Tags: []pipeline.Tag{
			{Key: "title", Value: src.title},
			{Key: "audio-codec", Value: src.codec},
			{Key: "channels", Value: src.format.NumChannels},
		},
	})

	p.out.Play(beep.Seq(c.ctrl, beep.Callback(func() {
		if !c.done.Load() {
			p.emit(pipeline.Event{Type: pipeline.EventEOS})
		}
	})))
}

func (p *Pipeline) setPausedLocked(paused bool) {
	if p.chain == nil {
		return
	}
	p.out.Lock()
	p.chain.ctrl.Paused = paused
	p.out.Unlock()
}

// teardownLocked stops the output, closes the source and finishes a
// running capture.
func (p *Pipeline) teardownLocked() {
	if p.chain != nil {
		p.chain.done.Store(true)
		p.out.Clear()
		if err := p.chain.src.stream.Close(); err != nil {
			zlog.Debug().Msgf("beepaudio: failed to close source: %v", err)
		}
		p.chain = nil
	}
	if rec, ok := p.sink.(*recordingSink); ok {
		rec.finish()
	}
}

// GetState waits at most timeout for a pending transition.
func (p *Pipeline) GetState(timeout time.Duration) (pipeline.ChangeReturn, pipeline.State, pipeline.State) {
	p.mu.Lock()
	settled := p.settled
	p.mu.Unlock()

	if settled != nil {
		timer := time.NewTimer(timeout)
		select {
		case <-settled:
		case <-timer.C:
		}
		timer.Stop()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != pipeline.StateVoidPending {
		return pipeline.ChangeAsync, p.state, p.pending
	}
	return pipeline.ChangeSuccess, p.state, pipeline.StateVoidPending
}

// QueryDuration returns the media length once prerolled. Streams have none.
func (p *Pipeline) QueryDuration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chain == nil {
		return 0, false
	}
	n, ok := p.chain.src.length()
	if !ok {
		return 0, false
	}
	return p.chain.src.format.SampleRate.D(n), true
}

// QueryPosition returns the decoder position once prerolled.
func (p *Pipeline) QueryPosition() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chain == nil {
		return 0, false
	}
	p.out.Lock()
	pos := p.chain.counter.pos
	p.out.Unlock()
	return p.chain.src.format.SampleRate.D(pos), true
}

// Seek moves the decoder to pos. Streams cannot seek.
func (p *Pipeline) Seek(pos time.Duration) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chain == nil || pos < 0 {
		return false
	}
	length, ok := p.chain.src.length()
	if !ok {
		return false
	}
	n := p.chain.src.format.SampleRate.N(pos)
	if n > length {
		return false
	}

	p.out.Lock()
	defer p.out.Unlock()
	if err := p.chain.src.stream.Seek(n); err != nil {
		zlog.Debug().Msgf("beepaudio: seek to %v failed: %v", pos, err)
		return false
	}
	p.chain.counter.pos = n
	return true
}

// URI returns the source URI.
func (p *Pipeline) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

// SetURI binds the source URI. It takes effect on the next preroll.
func (p *Pipeline) SetURI(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uri = uri
}

// Volume returns the linear output volume.
func (p *Pipeline) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume sets the linear output volume; 1.0 is unchanged, 0 is silent.
func (p *Pipeline) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.volume = v
	if p.chain != nil {
		p.out.Lock()
		applyVolume(p.chain.gain, v)
		p.out.Unlock()
	}
}

func applyVolume(gain *effects.Volume, v float64) {
	if v <= 0 {
		gain.Silent = true
		gain.Volume = 0
		return
	}
	gain.Silent = false
	gain.Volume = math.Log2(v)
}

// AudioSink returns the active audio sink.
func (p *Pipeline) AudioSink() pipeline.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

// SetAudioSink installs s. It takes effect on the next preroll.
func (p *Pipeline) SetAudioSink(s pipeline.Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = s
}

// NewRecordingSink creates a WAV capture sink. bitDepth is 0 (16 bit), 16
// or 24.
func (p *Pipeline) NewRecordingSink(bitDepth int) (pipeline.RecordingSink, error) {
	var precision int
	switch bitDepth {
	case 0, 16:
		precision = 2
	case 24:
		precision = 3
	default:
		return nil, errors.Newf("unsupported bit depth %d", bitDepth)
	}
	return &recordingSink{
		monitorSink: monitorSink{name: "record-sink", rate: p.rate},
		precision:   precision,
	}, nil
}

// NewAudioSink creates a device sink.
func (p *Pipeline) NewAudioSink() (pipeline.Sink, error) {
	return &monitorSink{name: "autoaudiosink", rate: p.rate}, nil
}

// Events returns the event channel.
func (p *Pipeline) Events() <-chan pipeline.Event {
	return p.events
}

// Close stops playback and closes the event channel.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.settleLocked()
	p.cancel()
	p.teardownLocked()
	p.state = pipeline.StateNull

	p.emu.Lock()
	defer p.emu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.events)
	}
	return nil
}

func (p *Pipeline) emitError(err error) {
	p.emit(pipeline.Event{
		Type:    pipeline.EventError,
		Message: err.Error(),
		Detail:  errors.UnwrapAll(err).Error(),
	})
}

// emit delivers ev without blocking. It is called from the output's
// goroutine too, so it must not take p.mu.
func (p *Pipeline) emit(ev pipeline.Event) {
	p.emu.Lock()
	defer p.emu.Unlock()

	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		zlog.Warn().Msgf("beepaudio: event buffer full, dropping %s", ev.Type)
	}
}

func isRemote(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
