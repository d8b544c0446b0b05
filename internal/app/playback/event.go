package playback

import (
	"fmt"

	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

// HandleEvent reacts to one pipeline event. It must run on the goroutine
// that dispatches commands.
func (c *Controller) HandleEvent(ev pipeline.Event) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("playback: panic while handling %s: %v", ev.Type, r)
			c.emit(response.Errorf("on_message - %v", r))
		}
	}()

	switch ev.Type {
	case pipeline.EventEOS:
		uri := c.pipe.URI()
		c.pipe.SetState(pipeline.StateNull)
		c.emit(response.New(response.TagStop))
		c.emit(response.New(response.TagEOS, orNone(uri)))

	case pipeline.EventTag:
		for _, tag := range ev.Tags {
			value, _ := pipeline.FormatValue(tag.Value)
			c.emit(response.New(response.TagTag, string(source(ev.Source)), tag.Key+"="+value))
		}

	case pipeline.EventStateChanged:
		c.stateChanged(ev.Old, ev.New)

	case pipeline.EventWarning:
		c.emit(response.New(response.TagWarning, c.describe(ev)))

	case pipeline.EventError:
		c.pipe.SetState(pipeline.StateNull)
		c.emit(response.New(response.TagError, c.describe(ev)))
		c.stop()
		c.emit(response.New(response.TagStop))

	default:
		zlog.Debug().Msgf("playback: unsupported event %s", ev.Type)
	}
}

func (c *Controller) describe(ev pipeline.Event) string {
	if c.config.Debug {
		return fmt.Sprintf("%s - %s", ev.Message, ev.Detail)
	}
	return ev.Message
}

func source(s pipeline.SourceKind) pipeline.SourceKind {
	if s == "" {
		return pipeline.SourceUnknown
	}
	return s
}

func orNone(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// stateChanged latches the original audio sink, reports the negotiated
// caps on preroll and resolves pending requests.
func (c *Controller) stateChanged(old, cur pipeline.State) {
	if c.router.Original() == nil {
		c.router.Remember(c.pipe.AudioSink())
	} else if old == pipeline.StateReady && cur == pipeline.StatePaused {
		c.reportCaps(c.router.Original())
	}

	if !c.requests.Empty() {
		c.resolveRequests(cur)
	}
}

func (c *Controller) reportCaps(sink pipeline.Sink) {
	for _, caps := range sink.NegotiatedCaps() {
		name, attrs := pipeline.FormatCaps(caps)
		c.emit(response.New(response.TagCap, name, attrs))
	}
}

// resolveRequests clears the requests confirmed by reaching state.
func (c *Controller) resolveRequests(state pipeline.State) {
	zlog.Debug().Msgf("playback: resolving %v at %s", c.requests.Names(), state)

	switch state {
	case pipeline.StatePlaying:
		if c.requests.Has(RequestPlaying) {
			c.emit(response.New(response.TagPlay))
			c.requests.Remove(RequestPlaying)
		}
		if c.requests.Has(RequestLoading) {
			c.emit(response.New(response.TagLoad, orNone(c.pipe.URI())))
			c.requests.Remove(RequestLoading)
		}
	case pipeline.StatePaused:
		if c.requests.Has(RequestPausing) {
			c.emit(response.New(response.TagPause))
			c.requests.Remove(RequestPausing)
		}
	case pipeline.StateNull:
		// stop reports STOP itself, so this only fires when a pause or
		// stop ends in NULL without passing PAUSED.
		if c.requests.Has(RequestPausing) {
			c.emit(response.New(response.TagPause))
			c.requests.Remove(RequestPausing)
		}
		if c.requests.Has(RequestStopping) {
			c.emit(response.New(response.TagStop))
			c.requests.Remove(RequestStopping)
		}
	}
}
