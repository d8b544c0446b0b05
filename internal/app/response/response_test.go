package response

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

func TestResponse_String(t *testing.T) {
	tests := []struct {
		name     string
		resp     Response
		expected string
	}{
		{name: "bare tag", resp: New(TagPlay), expected: "->PLAY"},
		{name: "string field", resp: New(TagLoad, "file:///tmp/a.mp3"), expected: "->LOAD file:///tmp/a.mp3"},
		{name: "integral float", resp: New(TagGain, 1.0), expected: "->GAIN 1.0"},
		{name: "fractional float", resp: New(TagGain, 0.5), expected: "->GAIN 0.5"},
		{name: "nil field", resp: New(TagEOS, nil), expected: "->EOS none"},
		{name: "stringer", resp: New(TagState, "SUCCESS", pipeline.StatePlaying), expected: "->STATE SUCCESS PLAYING"},
		{name: "integers", resp: New(TagShoutcast, "x.pls", 1, int64(-1), "t"), expected: "->SHOUTCAST x.pls 1 -1 t"},
		{name: "error", resp: Errorf("No such file - %s", "/x"), expected: "->ERROR No such file - /x"},
		{name: "warning", resp: Warningf("cannot seek"), expected: "->WARNING cannot seek"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.resp.String())
		})
	}
}

func TestBroadcaster_Emit(t *testing.T) {
	var out bytes.Buffer
	b := NewBroadcaster(&out)

	id1, lines1 := b.Subscribe(4)
	_, lines2 := b.Subscribe(4)
	assert.Equal(t, 2, b.SubscriberCount())

	b.Emit(New(TagPlay))
	b.Emit(New(TagStop))

	assert.Equal(t, "->PLAY\n->STOP\n", out.String())
	assert.Equal(t, "->PLAY", <-lines1)
	assert.Equal(t, "->STOP", <-lines1)
	assert.Equal(t, "->PLAY", <-lines2)
	assert.Equal(t, "->STOP", <-lines2)

	b.Unsubscribe(id1)
	_, ok := <-lines1
	assert.False(t, ok)
	assert.Equal(t, 1, b.SubscriberCount())

	// Unsubscribing twice is harmless.
	b.Unsubscribe(id1)
}

func TestBroadcaster_SlowSubscriberDropsLines(t *testing.T) {
	var out bytes.Buffer
	b := NewBroadcaster(&out)

	_, slow := b.Subscribe(1)
	_, fast := b.Subscribe(8)

	b.Emit(New(TagTime, "00:01/03:00"))
	b.Emit(New(TagTime, "00:02/03:00"))
	b.Emit(New(TagTime, "00:03/03:00"))

	assert.Len(t, slow, 1)
	assert.Equal(t, "->T 00:01/03:00", <-slow)
	assert.Len(t, fast, 3)
	assert.Equal(t, 3, bytes.Count(out.Bytes(), []byte("\n")))
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(nil)
	_, lines := b.Subscribe(0)
	b.Close()

	_, ok := <-lines
	assert.False(t, ok)
	assert.Equal(t, 0, b.SubscriberCount())

	_, late := b.Subscribe(0)
	_, ok = <-late
	require.False(t, ok)

	// Emitting without output or subscribers is a no-op.
	b.Emit(New(TagQuit))
}
