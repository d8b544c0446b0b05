package beepaudio

import "github.com/gopxl/beep/v2"

// Output renders the final stream. Lock and Unlock guard every change to a
// streamer that Output is currently playing.
type Output interface {
	Init(rate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}
