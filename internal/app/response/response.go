// Package response provides the response lines written to the output
// channel and their fan-out to attached control clients.
package response

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

// Prefix starts every response line.
const Prefix = "->"

// Response tags.
const (
	TagReady         = "READY"
	TagPlay          = "PLAY"
	TagPause         = "PAUSE"
	TagStop          = "STOP"
	TagLoad          = "LOAD"
	TagEOS           = "EOS"
	TagSeek          = "SEEK"
	TagGain          = "GAIN"
	TagRec           = "REC"
	TagTime          = "T"
	TagTag           = "TAG"
	TagCap           = "CAP"
	TagInfo          = "INFO"
	TagState         = "STATE"
	TagReqs          = "REQS"
	TagPlaylistBegin = "PLAYLIST-BEGIN"
	TagPlaylistItem  = ">"
	TagPlaylistEnd   = "PLAYLIST-END"
	TagShoutcast     = "SHOUTCAST"
	TagError         = "ERROR"
	TagWarning       = "WARNING"
	TagQuit          = "QUIT"
)

// Response is one status line: a tag and its fields.
type Response struct {
	Tag    string
	Fields []string
}

// New creates a response. Fields are rendered as text: nil becomes "none",
// floats always carry a fractional part.
func New(tag string, fields ...any) Response {
	return Response{
		Tag:    tag,
		Fields: lo.Map(fields, func(f any, _ int) string { return text(f) }),
	}
}

// Errorf creates an ERROR response.
func Errorf(format string, args ...any) Response {
	return New(TagError, fmt.Sprintf(format, args...))
}

// Warningf creates a WARNING response.
func Warningf(format string, args ...any) Response {
	return New(TagWarning, fmt.Sprintf(format, args...))
}

// String renders the response line without the terminator.
func (r Response) String() string {
	if len(r.Fields) == 0 {
		return Prefix + r.Tag
	}
	return Prefix + r.Tag + " " + strings.Join(r.Fields, " ")
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return "none"
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float64, float32:
		s, _ := pipeline.FormatValue(x)
		return s
	default:
		return fmt.Sprint(x)
	}
}

// Emitter receives responses.
type Emitter interface {
	Emit(r Response)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Response)

// Emit calls f(r).
func (f EmitterFunc) Emit(r Response) {
	f(r)
}
