package recording

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

// Router owns the recording sink and decides which file it writes to.
//
// Router is not safe for concurrent use; it belongs to the goroutine that
// drives the playback controller.
type Router struct {
	pipe     pipeline.Pipeline
	sink     pipeline.RecordingSink
	template *FileTemplate
	original pipeline.Sink
}

// NewRouter builds the recording sink on pipe.
func NewRouter(pipe pipeline.Pipeline, template *FileTemplate, bitDepth int) (*Router, error) {
	sink, err := pipe.NewRecordingSink(bitDepth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create recording sink")
	}

	return &Router{
		pipe:     pipe,
		sink:     sink,
		template: template,
	}, nil
}

// Sink returns the recording sink.
func (r *Router) Sink() pipeline.RecordingSink {
	return r.sink
}

// IsRecording reports whether the recording sink is the active audio sink.
func (r *Router) IsRecording() bool {
	active := r.pipe.AudioSink()
	return active != nil && active == pipeline.Sink(r.sink)
}

// OpenNextFile resolves the next capture file and binds it to the sink.
func (r *Router) OpenNextFile() (string, error) {
	path, err := r.template.Next()
	if err != nil {
		return "", err
	}
	r.sink.SetLocation(path)
	zlog.Debug().Msgf("recording: capture file is %s", path)
	return path, nil
}

// CloseCurrentFile unbinds the capture file and returns its path, or
// ok=false when none was bound.
func (r *Router) CloseCurrentFile() (string, bool) {
	path := r.sink.Location()
	r.sink.SetLocation("")
	return path, path != ""
}

// Remember latches s as the sink to restore when recording stops. Only the
// first non-recording sink is kept.
func (r *Router) Remember(s pipeline.Sink) bool {
	if r.original != nil || s == nil || s == pipeline.Sink(r.sink) {
		return false
	}
	r.original = s
	zlog.Debug().Msgf("recording: original audio sink is %s", s.Name())
	return true
}

// Original returns the latched sink, nil if none was seen yet.
func (r *Router) Original() pipeline.Sink {
	return r.original
}
