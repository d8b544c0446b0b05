//go:build !((linux && cgo) || windows || darwin)

package beepaudio

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
)

// OutputAvailable indicates whether the speaker output is supported in this build.
// The system audio device requires cgo on this platform.
const OutputAvailable = false

// ErrNoOutput is returned when the build has no audio device support.
var ErrNoOutput = errors.New("audio output is not available in this build")

// speakerOutput refuses to initialise.
type speakerOutput struct {
	mu sync.Mutex
}

// NewSpeakerOutput returns an output whose Init always fails.
func NewSpeakerOutput() Output {
	return &speakerOutput{}
}

func (o *speakerOutput) Init(beep.SampleRate, int) error { return ErrNoOutput }
func (o *speakerOutput) Play(beep.Streamer)              {}
func (o *speakerOutput) Clear()                          {}
func (o *speakerOutput) Lock()                           { o.mu.Lock() }
func (o *speakerOutput) Unlock()                         { o.mu.Unlock() }
