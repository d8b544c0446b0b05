package beepaudio

import (
	"os"
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

// monitorSink is the audio device branch.
type monitorSink struct {
	name string
	rate beep.SampleRate
}

func (s *monitorSink) Name() string { return s.name }

func (s *monitorSink) NegotiatedCaps() []pipeline.Caps {
	return []pipeline.Caps{{
		Name: "audio/x-raw-float",
		Fields: []pipeline.CapsField{
			{Key: "rate", Value: int(s.rate)},
			{Key: "channels", Value: 2},
			{Key: "width", Value: 32},
		},
	}}
}

// recordingSink plays like a monitor sink and captures the same samples to
// a WAV file while a location is bound. Samples are encoded on a writer
// goroutine as they are played; the header sizes are patched when the
// pipeline drops back to READY.
type recordingSink struct {
	monitorSink
	precision int

	mu       sync.Mutex
	location string
	capture  *capture
}

// capture is one running WAV encode.
type capture struct {
	file    *os.File
	samples chan [][2]float64
	done    chan struct{}
}

func (s *recordingSink) NegotiatedCaps() []pipeline.Caps {
	width := s.precision * 8
	return []pipeline.Caps{{
		Name: "audio/x-raw-int",
		Fields: []pipeline.CapsField{
			{Key: "rate", Value: int(s.rate)},
			{Key: "channels", Value: 2},
			{Key: "width", Value: width},
			{Key: "depth", Value: width},
		},
	}}
}

func (s *recordingSink) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

func (s *recordingSink) SetLocation(path string) {
	s.finish()
	s.mu.Lock()
	s.location = path
	s.mu.Unlock()
}

// start creates the capture file and starts its encoder. Nothing happens
// without a location or when a capture is already running.
func (s *recordingSink) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.location == "" || s.capture != nil {
		return
	}
	f, err := os.Create(s.location)
	if err != nil {
		zlog.Error().Msgf("beepaudio: failed to create %s: %v", s.location, err)
		return
	}

	c := &capture{
		file:    f,
		samples: make(chan [][2]float64, captureBacklog),
		done:    make(chan struct{}),
	}
	format := beep.Format{
		SampleRate:  s.rate,
		NumChannels: 2,
		Precision:   s.precision,
	}
	go func() {
		defer close(c.done)
		if err := wav.Encode(f, &captureStream{samples: c.samples}, format); err != nil {
			zlog.Error().Msgf("beepaudio: failed to encode %s: %v", f.Name(), err)
			// drain so write never blocks
			for range c.samples {
			}
		}
	}()
	s.capture = c
}

// write hands a copy of played samples to the encoder.
func (s *recordingSink) write(samples [][2]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return
	}
	s.capture.samples <- append([][2]float64(nil), samples...)
}

// finish ends the encode, waits for the header to be written and closes
// the file.
func (s *recordingSink) finish() {
	s.mu.Lock()
	c := s.capture
	s.capture = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	close(c.samples)
	<-c.done
	if err := c.file.Close(); err != nil {
		zlog.Error().Msgf("beepaudio: failed to close %s: %v", c.file.Name(), err)
	}
}

// captureBacklog is the number of played chunks queued for the encoder.
const captureBacklog = 64

// captureStream yields queued samples until the queue is closed.
type captureStream struct {
	samples <-chan [][2]float64
	pending [][2]float64
}

func (c *captureStream) Stream(dst [][2]float64) (int, bool) {
	for len(c.pending) == 0 {
		chunk, ok := <-c.samples
		if !ok {
			return 0, false
		}
		c.pending = chunk
	}
	n := copy(dst, c.pending)
	c.pending = c.pending[n:]
	return n, true
}

func (c *captureStream) Err() error { return nil }

// tee passes samples through and copies them to a recording sink.
type tee struct {
	s    beep.Streamer
	sink *recordingSink
}

func (t *tee) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	if n > 0 {
		t.sink.write(samples[:n])
	}
	return n, ok
}

func (t *tee) Err() error { return t.s.Err() }
