package playback

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emacsmirror/gaplay/internal/app/command"
	playlistapp "github.com/emacsmirror/gaplay/internal/app/playlist"
	"github.com/emacsmirror/gaplay/internal/app/recording"
	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
	"github.com/emacsmirror/gaplay/internal/infra/httpfetch"
	"github.com/emacsmirror/gaplay/internal/infra/sim"
)

type manualClock struct {
	t time.Time
}

func (c *manualClock) Now() time.Time          { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type recorder struct {
	lines []string
}

func (r *recorder) Emit(resp response.Response) {
	r.lines = append(r.lines, resp.String())
}

type harness struct {
	t      *testing.T
	c      *Controller
	pipe   *sim.Pipeline
	router *recording.Router
	clock  *manualClock
	out    *recorder
	dir    string
}

func newHarness(t *testing.T, simCfg sim.Config, cfg Config) *harness {
	t.Helper()

	dir := t.TempDir()
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	pipe := sim.New(simCfg, sim.WithClock(clock.Now))

	tmpl, err := recording.NewFileTemplate(filepath.Join(dir, "rec.wav"), false)
	require.NoError(t, err)
	router, err := recording.NewRouter(pipe, tmpl, 0)
	require.NoError(t, err)

	cfg.StateTimeout = time.Millisecond
	cfg.SeekSettle = time.Millisecond
	out := &recorder{}
	fetcher := playlistapp.NewFetcher(httpfetch.New(httpfetch.Config{Timeout: 5 * time.Second}))

	return &harness{
		t:      t,
		c:      NewController(cfg, pipe, router, fetcher, out),
		pipe:   pipe,
		router: router,
		clock:  clock,
		out:    out,
		dir:    dir,
	}
}

// media creates an empty media file in the harness directory.
func (h *harness) media(name string) string {
	h.t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, []byte("ID3"), 0o644))
	return path
}

// run dispatches each line and then handles every pending pipeline event.
func (h *harness) run(lines ...string) []string {
	h.t.Helper()
	for _, line := range lines {
		cmd, ok := command.Tokenize(line)
		require.True(h.t, ok, "blank command line")
		h.c.Dispatch(context.Background(), cmd)
		h.pump()
	}
	return h.take()
}

func (h *harness) pump() {
	for {
		select {
		case ev := <-h.pipe.Events():
			h.c.HandleEvent(ev)
		default:
			return
		}
	}
}

func (h *harness) take() []string {
	lines := h.out.lines
	h.out.lines = nil
	return lines
}

// only keeps the lines whose tag is one of tags.
func only(lines []string, tags ...string) []string {
	var out []string
	for _, line := range lines {
		tag := strings.Fields(strings.TrimPrefix(line, response.Prefix))[0]
		for _, want := range tags {
			if tag == want {
				out = append(out, line)
				break
			}
		}
	}
	return out
}

func uriOf(path string) string {
	return "file://" + path
}

func TestController_Load(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	song := h.media("song.mp3")

	lines := h.run("load " + song)
	assert.Equal(t, []string{
		"->TAG A title=song.mp3",
		"->TAG A bitrate=1411200",
		"->CAP audio/x-raw-int rate=44100 channels=2 width=16 depth=16",
		"->PLAY",
		"->LOAD " + uriOf(song),
	}, lines)
	assert.True(t, h.c.Requests().Empty())
	assert.Equal(t, pipeline.StatePlaying, h.pipe.State())
}

func TestController_LoadErrors(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})

	assert.Equal(t, []string{"->ERROR No such file - /nonexistent/a.mp3"}, h.run("load /nonexistent/a.mp3"))
	assert.Equal(t, []string{"->ERROR No such file - " + h.dir}, h.run("load "+h.dir))
	assert.Equal(t, []string{"->ERROR usage: load URL|FILEPATH"}, h.run("load"))
	assert.True(t, h.c.Requests().Empty())
}

func TestController_LoadURIPassesThrough(t *testing.T) {
	h := newHarness(t, sim.Config{Live: true}, Config{})

	lines := h.run("load http://example.com/live")
	assert.Equal(t, []string{"->PLAY", "->LOAD http://example.com/live"}, only(lines, "PLAY", "LOAD"))
	assert.Equal(t, []string{"->WARNING cannot seek"}, h.run("skip 5"))
}

func TestController_StopIsIdempotent(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))

	assert.Equal(t, []string{"->STOP"}, h.run("stop"))
	assert.Equal(t, pipeline.StateNull, h.pipe.State())
	assert.Equal(t, []string{"->STOP"}, h.run("stop"))
	assert.Equal(t, pipeline.StateNull, h.pipe.State())
}

func TestController_Replay(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))

	lines := h.run("replay")
	assert.Equal(t, []string{"->STOP", "->PLAY"}, only(lines, "STOP", "PLAY", "LOAD"))
}

func TestController_TogglePause(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))
	h.clock.Advance(30 * time.Second)

	assert.Equal(t, []string{"->PAUSE"}, h.run("pause"))
	assert.Equal(t, pipeline.StatePaused, h.pipe.State())
	assert.True(t, h.c.memo.Paused)
	assert.Equal(t, 30*time.Second, h.c.memo.Position)

	h.clock.Advance(time.Minute)
	assert.Equal(t, []string{"->PLAY"}, h.run("pause"))
	assert.Equal(t, pipeline.StatePlaying, h.pipe.State())

	h.c.WatchPosition()
	assert.Equal(t, []string{"->T 00:30/03:00"}, h.take())
}

func TestController_ExplicitPauseResume(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})

	assert.Equal(t, []string{"->WARNING Fail to pause - not playing"}, h.run("_pause"))
	assert.True(t, h.c.Requests().Empty())

	h.run("load " + h.media("song.mp3"))
	assert.Equal(t, []string{"->WARNING Fail to resume - already playing"}, h.run("_resume"))
	assert.True(t, h.c.Requests().Empty())

	assert.Equal(t, []string{"->PAUSE"}, h.run("_pause"))
	assert.Equal(t, []string{"->PLAY"}, h.run("_resume"))
	assert.True(t, h.c.Requests().Empty())
}

func TestController_PauseResumeWhileRecording(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))
	h.clock.Advance(42 * time.Second)

	first := filepath.Join(h.dir, "rec.wav")
	lines := h.run("rec")
	assert.Equal(t, []string{"->REC start " + first}, only(lines, "REC", "PLAY", "PAUSE", "STOP"))
	assert.True(t, h.router.IsRecording())
	assert.Equal(t, pipeline.StatePlaying, h.pipe.State())

	// A recording cannot pause: the pipeline stops and the file is closed.
	lines = h.run("pause")
	assert.Equal(t, []string{"->REC end " + first, "->PAUSE"}, only(lines, "REC", "PAUSE", "STOP"))
	assert.Equal(t, pipeline.StateNull, h.pipe.State())
	assert.Equal(t, 42*time.Second, h.c.memo.Position)

	// Resuming reopens a fresh file and seeks back to the paused position.
	second := filepath.Join(h.dir, "rec-1.wav")
	lines = h.run("pause")
	assert.Equal(t, []string{"->REC start " + second, "->PLAY"}, only(lines, "REC", "PLAY"))
	h.c.WatchPosition()
	assert.Equal(t, []string{"->T 00:42/03:00"}, h.take())

	assert.Equal(t, []string{"->WARNING cannot seek when recording"}, h.run("skip 10"))
}

func TestController_RecordToggleWhileStopped(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	original := h.pipe.AudioSink()
	path := filepath.Join(h.dir, "rec.wav")

	assert.Equal(t, []string{"->REC start " + path}, h.run("rec"))
	assert.True(t, h.router.IsRecording())

	assert.Equal(t, []string{"->REC end " + path}, h.run("rec"))
	assert.False(t, h.router.IsRecording())
	assert.Equal(t, original, h.pipe.AudioSink())
}

func TestController_RecordTemplateFailure(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	blocker := filepath.Join(h.dir, "blocked")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	tmpl, err := recording.NewFileTemplate(filepath.Join(blocker, "rec.wav"), false)
	require.NoError(t, err)
	router, err := recording.NewRouter(h.pipe, tmpl, 0)
	require.NoError(t, err)
	h.c.router = router

	lines := h.run("rec")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "->ERROR fail to dispatch_command: "), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], " - rec"), lines[0])
	assert.False(t, router.IsRecording())
}

func TestController_Seek(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})

	assert.Equal(t, []string{"->WARNING fail to seek - not playing"}, h.run("skip 5"))

	h.run("load " + h.media("song.mp3"))
	assert.Equal(t, []string{"->SEEK 01:30/03:00"}, h.run("jump 90"))
	assert.Equal(t, []string{"->SEEK 00:00/03:00"}, h.run("skip -1000"))
	assert.Equal(t, []string{"->SEEK 03:00/03:00"}, h.run("skip 500"))
}

func TestController_SeekArguments(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))

	assert.Equal(t, []string{"->ERROR usage: skip SEC"}, h.run("skip 0"))
	assert.Equal(t, []string{"->ERROR usage: jump SEC"}, h.run("jump"))
	assert.Equal(t, []string{"->SEEK 00:00/03:00"}, h.run("jump 0"))
	assert.Equal(t, []string{"->SEEK 00:00/03:00"}, h.run("jump -5"))
}

func TestController_DispatchFailures(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	song := h.media("song.mp3")
	h.pipe.Stall()

	assert.Empty(t, h.run("load "+song))
	assert.True(t, h.c.Requests().Has(RequestLoading))
	assert.True(t, h.c.Requests().Has(RequestPlaying))

	// Usage errors and unknown commands keep the pending requests.
	assert.Equal(t, []string{"->ERROR usage: skip SEC"}, h.run("skip"))
	assert.Equal(t, []string{"->ERROR Illegal command - dance"}, h.run("dance now"))
	assert.False(t, h.c.Requests().Empty())

	// Any other failure clears them.
	assert.Equal(t, []string{"->ERROR fail to dispatch_command: boom - raise boom"}, h.run("raise boom"))
	assert.True(t, h.c.Requests().Empty())

	h.pipe.Release()
	h.pump()
	assert.Empty(t, only(h.take(), "PLAY", "LOAD"))
}

func TestController_TogglePauseWhileChanging(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))
	h.pipe.Stall()
	h.run("stop")
	h.run("_resume")

	// The pipeline is still changing state, so nothing can be observed.
	lines := h.run("pause")
	assert.Equal(t, []string{
		"->WARNING player has not NULL or PAUSED or PLAYING state",
		"->WARNING Already has playing-request",
	}, lines)
}

func TestController_Events(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	song := h.media("song.mp3")
	h.run("load " + song)

	h.pipe.Finish()
	h.pump()
	assert.Equal(t, []string{"->STOP", "->EOS " + uriOf(song)}, h.take())
	assert.Equal(t, pipeline.StateNull, h.pipe.State())

	h.pipe.Warn("buffer underrun", "queue2")
	h.pump()
	assert.Equal(t, []string{"->WARNING buffer underrun"}, h.take())
}

func TestController_ErrorEventClosesCapture(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	path := filepath.Join(h.dir, "rec.wav")
	h.run("rec")
	h.run("load " + h.media("song.mp3"))
	require.True(t, h.router.IsRecording())

	h.pipe.Fail("Could not open resource", "gstfilesrc.c")
	h.pump()
	assert.Equal(t, []string{
		"->ERROR Could not open resource",
		"->REC end " + path,
		"->STOP",
	}, only(h.take(), "ERROR", "REC", "STOP"))
	assert.Equal(t, pipeline.StateNull, h.pipe.State())
}

func TestController_DebugMessages(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{Debug: true})

	h.pipe.Warn("buffer underrun", "queue2")
	h.pump()
	assert.Equal(t, []string{"->WARNING buffer underrun - queue2"}, h.take())

	assert.Equal(t, []string{
		"->INFO uri=none gain=1.0",
		"->STATE SUCCESS NULL VOID_PENDING",
		"->REQS",
	}, h.run("info"))
}

func TestController_GainInfoState(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})

	assert.Equal(t, []string{"->GAIN 1.0"}, h.run("gain"))
	assert.Equal(t, []string{"->GAIN 0.5"}, h.run("gain 0.5"))
	assert.Equal(t, []string{"->INFO uri=none gain=0.5"}, h.run("info"))
	assert.Equal(t, []string{"->ERROR usage: gain [LEVEL]"}, h.run("gain loud"))

	assert.Equal(t, []string{
		"->ERROR No state key - bogus",
		"->STATE SUCCESS NULL VOID_PENDING",
	}, h.run("state bogus"))
	assert.Equal(t, []string{"->STATE SUCCESS NULL VOID_PENDING"}, h.run("state"))
	assert.Equal(t, []string{
		"->ERROR No state key - void_pending",
		"->STATE SUCCESS NULL VOID_PENDING",
	}, h.run("state void_pending"))

	song := h.media("song.mp3")
	h.run("load " + song)
	assert.Equal(t, []string{"->INFO uri=" + uriOf(song) + " gain=0.5"}, h.run("info"))
	assert.Equal(t, []string{"->STATE SUCCESS READY VOID_PENDING"}, only(h.run("state ready"), "STATE"))
}

func TestController_EchoCommands(t *testing.T) {
	h := newHarness(t, sim.Config{}, Config{})

	assert.Equal(t, []string{"->ERROR disk full"}, h.run("error disk full"))
	assert.Equal(t, []string{"->WARNING low battery"}, h.run("warning low battery"))
}

func TestController_Quit(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	h.run("load " + h.media("song.mp3"))

	assert.False(t, h.c.Quitting())
	assert.Equal(t, []string{"->STOP"}, h.run("quit"))
	assert.True(t, h.c.Quitting())
	assert.Equal(t, []string{"->STOP"}, h.run("quit"))
}

func TestController_WatchPosition(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 3700}, Config{})
	song := h.media("song.mp3")
	h.run("load " + song)

	h.c.WatchPosition()
	assert.Equal(t, []string{"->T 00:00/01:01:40"}, h.take())

	h.c.WatchPosition()
	h.clock.Advance(400 * time.Millisecond)
	h.c.WatchPosition()
	assert.Empty(t, h.take(), "no report until the rounded values change")

	h.clock.Advance(200 * time.Millisecond)
	h.c.WatchPosition()
	assert.Equal(t, []string{"->T 00:01/01:01:40"}, h.take())

	h.run("stop")
	h.c.WatchPosition()
	assert.Empty(t, h.take())

	h.run("load " + song)
	h.c.WatchPosition()
	assert.Equal(t, []string{"->T 00:00/01:01:40"}, h.take())
}

func TestController_Snapshot(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	song := h.media("song.mp3")
	h.run("load " + song)
	h.clock.Advance(10 * time.Second)

	s := h.c.Snapshot()
	assert.Equal(t, pipeline.StatePlaying, s.State)
	assert.Equal(t, pipeline.StatePlaying, s.Desired)
	assert.Equal(t, pipeline.StateVoidPending, s.Pending)
	assert.Empty(t, s.Requests)
	assert.Equal(t, 180*time.Second, s.Duration)
	assert.Equal(t, 10*time.Second, s.Position)
	assert.Equal(t, uriOf(song), s.URI)
	assert.False(t, s.Recording)
}

func TestController_LoadHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list.m3u":
			w.Header().Set("Content-Type", "audio/x-mpegurl")
			fmt.Fprint(w, "#EXTINF:180,A\nhttp://example.com/a\nhttp://example.com/b\n")
		default:
			w.Header().Set("Content-Type", "audio/mpeg")
			fmt.Fprint(w, "ID3")
		}
	}))
	defer server.Close()

	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})

	listURL := server.URL + "/list.m3u"
	assert.Equal(t, []string{
		"->PLAYLIST-BEGIN m3u " + listURL,
		"->> 1 path http://example.com/a",
		"->> 1 duration 180",
		"->> 1 title A",
		"->> 2 path http://example.com/b",
		"->PLAYLIST-END",
	}, h.run("load-http "+listURL))

	streamURL := server.URL + "/stream"
	assert.Equal(t, []string{"->LOAD " + streamURL}, only(h.run("load-http "+streamURL), "LOAD"))

	assert.Equal(t, []string{"->ERROR No such file - /nonexistent.mp3"}, h.run("load-http /nonexistent.mp3"))
}

func TestController_LoadShoutcast(t *testing.T) {
	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})
	song := h.media("song.mp3")
	other := h.media("other.mp3")
	list := filepath.Join(h.dir, "list.pls")
	require.NoError(t, os.WriteFile(list, []byte(
		"[playlist]\nFile1=song.mp3\nTitle1=Song\nLength1=180\nFile2=other.mp3\nNumberOfEntries=2\n"), 0o644))
	h.c.randIntN = func(int) int { return 0 }

	tests := []struct {
		name      string
		index     int
		shoutcast string
		load      string
	}{
		{name: "random entry", index: 0, shoutcast: "->SHOUTCAST " + uriOf(list) + " 1 180 Song", load: uriOf(song)},
		{name: "first entry", index: 1, shoutcast: "->SHOUTCAST " + uriOf(list) + " 1 180 Song", load: uriOf(song)},
		{name: "clamped to last", index: 9, shoutcast: "->SHOUTCAST " + uriOf(list) + " 2 -1 ", load: uriOf(other)},
		{name: "negative picks last", index: -1, shoutcast: "->SHOUTCAST " + uriOf(list) + " 2 -1 ", load: uriOf(other)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := h.run(fmt.Sprintf("load-shoutcast %d %s", tt.index, list))
			assert.Equal(t, []string{tt.shoutcast, "->LOAD " + tt.load}, only(lines, "SHOUTCAST", "LOAD"))
		})
	}
}

func TestController_LoadShoutcastWarnings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/x-scpls")
		fmt.Fprint(w, "[playlist]\nFile1=/music/local.mp3\n")
	}))
	defer server.Close()

	h := newHarness(t, sim.Config{DurationSec: 180}, Config{})

	empty := filepath.Join(h.dir, "empty.pls")
	require.NoError(t, os.WriteFile(empty, []byte("[playlist]\nNumberOfEntries=0\n"), 0o644))
	assert.Equal(t, []string{"->WARNING playlist has no entry - " + empty}, h.run("load-shoutcast 1 "+empty))

	nofile := filepath.Join(h.dir, "nofile.pls")
	require.NoError(t, os.WriteFile(nofile, []byte("[playlist]\nTitle1=Nothing\n"), 0o644))
	assert.Equal(t, []string{"->WARNING playlist entry has not `file' attribute"}, h.run("load-shoutcast 1 "+nofile))

	assert.Equal(t, []string{"->WARNING remote playlist entry has local-path - /music/local.mp3"},
		h.run("load-shoutcast 1 "+server.URL+"/list.pls"))

	lines := h.run("load-shoutcast 1 " + filepath.Join(h.dir, "missing.pls"))
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "->ERROR fail to dispatch_command: "), lines[0])
}

func TestSecondsString(t *testing.T) {
	tests := []struct {
		sec      int64
		expected string
	}{
		{sec: 0, expected: "00:00"},
		{sec: 59, expected: "00:59"},
		{sec: 180, expected: "03:00"},
		{sec: 3600, expected: "01:00:00"},
		{sec: 3725, expected: "01:02:05"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, secondsString(tt.sec))
		})
	}
}

func TestRoundSeconds(t *testing.T) {
	assert.Equal(t, int64(0), roundSeconds(499*time.Millisecond))
	assert.Equal(t, int64(1), roundSeconds(500*time.Millisecond))
	assert.Equal(t, int64(2), roundSeconds(1500*time.Millisecond))
	assert.Equal(t, int64(-1), roundSeconds(-600*time.Millisecond))
}

func TestPendingSet(t *testing.T) {
	var s PendingSet
	assert.True(t, s.Empty())

	s.Add(RequestPlaying)
	s.Add(RequestLoading)
	assert.Equal(t, []string{"LOADING", "PLAYING"}, s.Names())

	s.Remove(RequestPlaying)
	assert.True(t, s.Has(RequestLoading))
	assert.False(t, s.Has(RequestPlaying))

	s.Clear()
	assert.True(t, s.Empty())
}
