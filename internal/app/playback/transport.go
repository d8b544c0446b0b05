package playback

import (
	"math"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	zlog "github.com/rs/zerolog/log"

	playlistapp "github.com/emacsmirror/gaplay/internal/app/playlist"
	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

var uriScheme = regexp.MustCompile(`^(\w+)://`)

// hasURIScheme reports whether s starts with "scheme://".
func hasURIScheme(s string) bool {
	return uriScheme.MatchString(s)
}

// isLocal reports whether s names local media: a plain path or a file,
// dvd or cdda URI.
func isLocal(s string) bool {
	m := uriScheme.FindStringSubmatch(s)
	if m == nil {
		return true
	}
	switch strings.ToLower(m[1]) {
	case "file", "dvd", "cdda":
		return true
	default:
		return false
	}
}

func fileURI(abs string) string {
	return (&url.URL{Scheme: "file", Path: abs}).String()
}

// stateList returns the current and pending states, or nil when the
// pipeline fails to answer or is still changing state.
func (c *Controller) stateList() []pipeline.State {
	ret, cur, pending := c.pipe.GetState(c.config.StateTimeout)
	if ret == pipeline.ChangeFailure || ret == pipeline.ChangeAsync {
		return nil
	}
	return []pipeline.State{cur, pending}
}

func (c *Controller) hasState(s pipeline.State) bool {
	return slices.Contains(c.stateList(), s)
}

// capturePosition returns the position when the media has a known, positive
// duration, UnknownPosition otherwise.
func (c *Controller) capturePosition() time.Duration {
	d, ok := c.pipe.QueryDuration()
	if !ok || d <= 0 {
		return UnknownPosition
	}
	pos, ok := c.pipe.QueryPosition()
	if !ok {
		return UnknownPosition
	}
	return pos
}

// playKeepVolume re-applies the volume before going to PLAYING; some
// backends reset it on NULL to PLAYING.
func (c *Controller) playKeepVolume() pipeline.ChangeReturn {
	c.pipe.SetVolume(c.pipe.Volume())
	return c.pipe.SetState(pipeline.StatePlaying)
}

// seekPaused prerolls, waits at most SeekSettle for the pipeline to settle
// and seeks to pos.
func (c *Controller) seekPaused(pos time.Duration) {
	c.pipe.SetState(pipeline.StatePaused)
	ret, cur, _ := c.pipe.GetState(c.config.SeekSettle)
	zlog.Debug().Msgf("playback: settled %s in %s before seek", ret, cur)
	if !c.pipe.Seek(pos) {
		zlog.Debug().Msgf("playback: seek to %v refused", pos)
	}
}

func (c *Controller) startCapture() error {
	path, err := c.router.OpenNextFile()
	if err != nil {
		return err
	}
	c.emit(response.New(response.TagRec, "start", path))
	return nil
}

func (c *Controller) endCapture() {
	if path, ok := c.router.CloseCurrentFile(); ok {
		c.emit(response.New(response.TagRec, "end", path))
	}
}

func (c *Controller) loadCommand(target string) error {
	uri := target
	if !hasURIScheme(target) {
		abs, err := playlistapp.ExpandPath(target)
		if err != nil {
			return err
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			c.emit(response.Errorf("No such file - %s", target))
			return nil
		}
		uri = fileURI(abs)
	}

	c.requests.Add(RequestLoading)
	c.requests.Add(RequestPlaying)
	if err := c.play(uri); err != nil {
		c.requests.Remove(RequestLoading)
		c.requests.Remove(RequestPlaying)
		return err
	}
	return nil
}

func (c *Controller) playCommand() error {
	c.requests.Add(RequestPlaying)
	if err := c.play(""); err != nil {
		c.requests.Remove(RequestPlaying)
		return err
	}
	return nil
}

// play restarts playback, binding uri first when given.
func (c *Controller) play(uri string) error {
	c.stop()
	if uri != "" {
		c.pipe.SetURI(uri)
	}
	if c.router.IsRecording() {
		if err := c.startCapture(); err != nil {
			return err
		}
	}
	ret := c.playKeepVolume()
	zlog.Debug().Msgf("playback: play %s returned %s", c.pipe.URI(), ret)
	return nil
}

func (c *Controller) stopCommand() {
	c.stop()
	c.emit(response.New(response.TagStop))
}

func (c *Controller) stop() {
	c.memo.reset()
	c.pipe.SetState(pipeline.StateNull)
	if c.router.IsRecording() {
		c.endCapture()
	}
}

func (c *Controller) pauseCommand() {
	c.requests.Add(RequestPausing)
	if !c.pause() {
		c.requests.Remove(RequestPausing)
	}
}

func (c *Controller) pause() bool {
	if !c.hasState(pipeline.StatePlaying) {
		c.warn("Fail to pause - not playing")
		return false
	}
	c.memo.Paused = true
	c.memo.Position = c.capturePosition()
	c.suspend(false)
	return true
}

// suspend pauses the pipeline. A recording cannot be paused mid-stream, so
// it is stopped and its file closed instead.
func (c *Controller) suspend(warnAsync bool) {
	if c.router.IsRecording() {
		c.pipe.SetState(pipeline.StateNull)
		c.endCapture()
		return
	}
	ret := c.pipe.SetState(pipeline.StatePaused)
	if ret == pipeline.ChangeAsync {
		zlog.Debug().Msg("playback: pause returned ASYNC")
		if warnAsync {
			c.warn("set_state returns STATE_CHANGE_ASYNC")
		}
	}
}

func (c *Controller) resumeCommand() error {
	c.requests.Add(RequestPlaying)
	ok, err := c.resume()
	if err != nil || !ok {
		c.requests.Remove(RequestPlaying)
	}
	return err
}

func (c *Controller) resume() (bool, error) {
	c.memo.Paused = false
	if c.hasState(pipeline.StatePlaying) {
		c.warn("Fail to resume - already playing")
		return false, nil
	}

	if c.hasState(pipeline.StatePaused) {
		c.memo.Position = UnknownPosition
		if !c.resumePaused() {
			return false, nil
		}
		return true, nil
	}

	if !c.hasState(pipeline.StateNull) {
		c.warn("Has not NULL state and PAUSED state")
	}
	pos := c.memo.Position
	c.memo.Position = UnknownPosition
	if err := c.resumeStopped(pos); err != nil {
		return false, err
	}
	return true, nil
}

// resumePaused goes from PAUSED back to PLAYING. Recording never pauses,
// so finding it active here forces a stop.
func (c *Controller) resumePaused() bool {
	if c.router.IsRecording() {
		c.emit(response.Errorf("programing bug, will stop"))
		c.stop()
		return false
	}
	c.pipe.SetState(pipeline.StatePlaying)
	return true
}

// resumeStopped restarts from NULL, seeking back to pos when it is known.
func (c *Controller) resumeStopped(pos time.Duration) error {
	if c.router.IsRecording() {
		if err := c.startCapture(); err != nil {
			return err
		}
	}
	if pos > 0 {
		c.seekPaused(pos)
	}
	c.playKeepVolume()
	return nil
}

func (c *Controller) togglePause() error {
	states := c.stateList()

	switch {
	case slices.Contains(states, pipeline.StatePlaying):
		if c.memo.Paused {
			c.warn("Duplicated pause command")
		}
		if c.requests.Has(RequestPausing) {
			c.warn("Already pausing")
		}
		c.memo.Paused = true
		c.memo.Position = c.capturePosition()
		c.requests.Add(RequestPausing)
		c.suspend(true)
		return nil

	case slices.Contains(states, pipeline.StatePaused):
		if c.requests.Has(RequestPlaying) {
			c.warn("Already has playing-request")
		}
		c.memo.reset()
		if c.router.IsRecording() {
			c.emit(response.Errorf("programing bug, will stop"))
			c.stop()
			return nil
		}
		c.requests.Add(RequestPlaying)
		c.pipe.SetState(pipeline.StatePlaying)
		return nil

	default:
		if !slices.Contains(states, pipeline.StateNull) {
			c.warn("player has not NULL or PAUSED or PLAYING state")
		}
		if c.requests.Has(RequestPlaying) {
			c.warn("Already has playing-request")
		}
		pos := c.memo.Position
		c.memo.reset()
		c.requests.Add(RequestPlaying)
		return c.resumeStopped(pos)
	}
}

func (c *Controller) toggleRecord() error {
	pos := UnknownPosition
	playing := c.hasState(pipeline.StatePlaying)
	if playing {
		pos = c.capturePosition()
	}

	c.pipe.SetState(pipeline.StateNull)
	if c.router.IsRecording() {
		c.endCapture()
		sink := c.router.Original()
		if sink == nil {
			if c.config.Debug {
				c.warn("Fail original audio sink, use `autoaudiosink'")
			}
			var err error
			sink, err = c.pipe.NewAudioSink()
			if err != nil {
				return err
			}
		}
		c.pipe.SetAudioSink(sink)
		zlog.Debug().Msg("playback: stop recording")
	} else {
		c.router.Remember(c.pipe.AudioSink())
		path, err := c.router.OpenNextFile()
		if err != nil {
			return err
		}
		c.pipe.SetAudioSink(c.router.Sink())
		c.emit(response.New(response.TagRec, "start", path))
	}

	if playing {
		if pos >= 0 {
			c.seekPaused(pos)
		}
		c.playKeepVolume()
	}
	return nil
}

func (c *Controller) seek(offset time.Duration, incremental bool) {
	if c.router.IsRecording() {
		c.warn("cannot seek when recording")
		return
	}
	if c.hasState(pipeline.StateNull) {
		c.warn("fail to seek - not playing")
		return
	}

	dur, durOK := c.pipe.QueryDuration()
	pos, posOK := c.pipe.QueryPosition()
	if !durOK || !posOK || dur <= 0 || pos < 0 {
		c.warn("cannot seek")
		return
	}

	target := offset
	if incremental {
		target = addSaturating(pos, offset)
	}
	target = min(dur, max(0, target))

	if c.pipe.Seek(target) {
		c.emit(response.New(response.TagSeek, secondsString(roundSeconds(target))+"/"+secondsString(roundSeconds(dur))))
	} else {
		c.emit(response.Errorf("fail to seek"))
	}
}

func addSaturating(a, b time.Duration) time.Duration {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	default:
		return a + b
	}
}
