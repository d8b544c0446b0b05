//go:build (linux && cgo) || windows || darwin

package beepaudio

import (
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// OutputAvailable indicates whether the speaker output is supported in this build.
const OutputAvailable = true

// speakerOutput plays through the system audio device.
type speakerOutput struct {
	once sync.Once
	err  error
}

// NewSpeakerOutput returns the output backed by the system audio device.
// The device is opened on the first Init; later calls return its result.
func NewSpeakerOutput() Output {
	return &speakerOutput{}
}

func (o *speakerOutput) Init(rate beep.SampleRate, bufferSize int) error {
	o.once.Do(func() {
		o.err = speaker.Init(rate, bufferSize)
	})
	return o.err
}

func (o *speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (o *speakerOutput) Clear()               { speaker.Clear() }
func (o *speakerOutput) Lock()                { speaker.Lock() }
func (o *speakerOutput) Unlock()              { speaker.Unlock() }
