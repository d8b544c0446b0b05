package command

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		want   Command
		wantOK bool
	}{
		{name: "blank line", line: "  \t\n", wantOK: false},
		{name: "bare name", line: "play\n", want: Command{Name: "play"}, wantOK: true},
		{
			name:   "path with spaces stays one argument",
			line:   "load  /music/My Song.mp3  \n",
			want:   Command{Name: "load", Args: []string{"/music/My Song.mp3"}},
			wantOK: true,
		},
		{
			name:   "tab separator",
			line:   "skip\t-5",
			want:   Command{Name: "skip", Args: []string{"-5"}},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Tokenize(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParse(t *testing.T) {
	level := 1.5

	tests := []struct {
		name      string
		line      string
		want      Op
		wantUsage string
	}{
		{name: "load", line: "load /tmp/a.mp3", want: Load{Target: "/tmp/a.mp3"}},
		{name: "load without target", line: "load", wantUsage: "load URL|FILEPATH"},
		{name: "pause is the toggle", line: "pause", want: TogglePause{}},
		{name: "explicit pause", line: "_pause", want: Pause{}},
		{name: "explicit resume", line: "_resume", want: Resume{}},
		{name: "gain query", line: "gain", want: Gain{}},
		{name: "gain set", line: "gain 1.5", want: Gain{Level: &level}},
		{name: "gain not a number", line: "gain loud", wantUsage: "gain [LEVEL]"},
		{name: "gain out of range", line: "gain 11", wantUsage: "gain [LEVEL]"},
		{name: "skip", line: "skip -10", want: Skip{Seconds: -10}},
		{name: "skip zero", line: "skip 0", wantUsage: "skip SEC"},
		{name: "skip missing", line: "skip", wantUsage: "skip SEC"},
		{name: "skip saturates", line: "skip 99999999999999999999", want: Skip{Seconds: MaxSeekSeconds}},
		{name: "jump zero", line: "jump 0", want: Jump{Seconds: 0}},
		{name: "jump not a number", line: "jump 1:30", wantUsage: "jump SEC"},
		{name: "load-http", line: "load-http http://example.com/x.pls", want: LoadHTTP{URL: "http://example.com/x.pls"}},
		{
			name: "load-shoutcast",
			line: "load-shoutcast -1 /tmp/my list.pls",
			want: LoadShoutcast{Index: -1, Path: "/tmp/my list.pls"},
		},
		{name: "load-shoutcast without path", line: "load-shoutcast 1", wantUsage: "load-shoutcast N PATH"},
		{name: "load-shoutcast bad index", line: "load-shoutcast x a.pls", wantUsage: "load-shoutcast N PATH"},
		{name: "state", line: "state paused", want: State{Key: "paused"}},
		{name: "state without key", line: "state", want: State{}},
		{name: "warning message", line: "warning disk almost full", want: Warning{Message: "disk almost full"}},
		{name: "raise", line: "raise boom", want: Raise{Message: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Tokenize(tt.line)
			require.True(t, ok)

			got, err := Parse(c)
			if tt.wantUsage != "" {
				var usageErr *UsageError
				require.True(t, errors.As(err, &usageErr), "expected usage error, got %v", err)
				assert.Equal(t, tt.wantUsage, usageErr.Usage)
				assert.Equal(t, "usage: "+tt.wantUsage, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_UnknownCommand(t *testing.T) {
	_, err := Parse(New("dance"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCommand))

	// Names are case-sensitive.
	_, err = Parse(New("PLAY"))
	assert.True(t, errors.Is(err, ErrUnknownCommand))
}
