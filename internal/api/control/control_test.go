package control

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emacsmirror/gaplay/internal/app/playback"
	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/app/session"
)

type fakeSession struct {
	mu    sync.Mutex
	lines []string
	snap  playback.Snapshot
	err   error

	done     chan struct{}
	doneOnce sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{done: make(chan struct{})}
}

func (f *fakeSession) Submit(line string) error {
	select {
	case <-f.done:
		return session.ErrSessionClosed
	default:
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeSession) Status(ctx context.Context) (playback.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeSession) Done() <-chan struct{} {
	return f.done
}

func (f *fakeSession) finish() {
	f.doneOnce.Do(func() { close(f.done) })
}

func (f *fakeSession) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func waitSubscribers(t *testing.T, b *response.Broadcaster, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return b.SubscriberCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCheckToken(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		want     string
		expected bool
	}{
		{name: "no token configured", got: "", want: "", expected: true},
		{name: "no token configured ignores header", got: "x", want: "", expected: true},
		{name: "match", got: "secret", want: "secret", expected: true},
		{name: "mismatch", got: "secreT", want: "secret", expected: false},
		{name: "missing", got: "", want: "secret", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checkToken(tt.got, tt.want))
		})
	}
}
