package pipeline

import (
	"strings"
	"time"
)

// CapsField is one negotiated capability attribute.
type CapsField struct {
	Key   string
	Value any
}

// Caps is a negotiated media format, e.g. "audio/x-raw-int rate=44100".
type Caps struct {
	Name   string
	Fields []CapsField
}

// Sink is an audio sink that can be installed as the pipeline's active
// audio output. Sinks are compared by identity.
type Sink interface {
	Name() string
	// NegotiatedCaps returns the formats agreed on the sink's input pads.
	NegotiatedCaps() []Caps
}

// RecordingSink is a fan-out sink: a live monitor branch plus a file
// encoder branch whose target is the location property.
type RecordingSink interface {
	Sink
	Location() string
	// SetLocation binds the file branch target; "" unbinds it.
	SetLocation(path string)
}

// Pipeline is the media backend driven by the playback controller.
//
// Events are delivered on a single channel. The consumer of that channel is
// the only goroutine allowed to react to them.
type Pipeline interface {
	SetState(s State) ChangeReturn
	// GetState waits at most timeout for a pending transition and returns
	// the result with the current and pending states. A timeout yields
	// ChangeAsync.
	GetState(timeout time.Duration) (ChangeReturn, State, State)

	QueryDuration() (time.Duration, bool)
	QueryPosition() (time.Duration, bool)
	// Seek performs a flushing seek to an absolute position.
	Seek(pos time.Duration) bool

	URI() string
	SetURI(uri string)
	Volume() float64
	SetVolume(v float64)

	// AudioSink returns the active audio sink, nil until one is chosen.
	AudioSink() Sink
	SetAudioSink(s Sink)
	NewRecordingSink(bitDepth int) (RecordingSink, error)
	NewAudioSink() (Sink, error)

	Events() <-chan Event
	Close() error
}

// FormatCaps renders caps as "name k=v k=v".
func FormatCaps(c Caps) (string, string) {
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		parts = append(parts, f.Key+"="+formatValue(f.Value))
	}
	return c.Name, strings.Join(parts, " ")
}
