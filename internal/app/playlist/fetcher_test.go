package playlist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emacsmirror/gaplay/internal/domain/playlist"
	"github.com/emacsmirror/gaplay/internal/infra/httpfetch"
)

func TestFetcher_Remote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/list.pls":
			w.Header().Set("Content-Type", "audio/x-scpls")
			fmt.Fprint(w, "[playlist]\nFile1=http://example.com/a\nTitle1=A\n")
		case "/list.m3u":
			w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
			fmt.Fprint(w, "#EXTINF:5,B\nhttp://example.com/b\n")
		case "/stream":
			w.Header().Set("Content-Type", "audio/mpeg")
			fmt.Fprint(w, "http://example.com/c\n")
		}
	}))
	defer server.Close()

	fetcher := NewFetcher(httpfetch.New(httpfetch.Config{}))
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		force     bool
		wantType  playlist.Type
		wantFiles []string
		wantErr   error
	}{
		{name: "pls content type", path: "/list.pls", wantType: playlist.TypePLS, wantFiles: []string{"http://example.com/a"}},
		{name: "m3u content type", path: "/list.m3u", wantType: playlist.TypeM3U, wantFiles: []string{"http://example.com/b"}},
		{name: "stream is not a playlist", path: "/stream", wantErr: ErrNotPlaylist},
		{name: "forced parse detects format", path: "/stream", force: true, wantType: playlist.TypeM3U, wantFiles: []string{"http://example.com/c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fetcher.Fetch(ctx, server.URL+tt.path, tt.force)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantFiles, got.Files())
		})
	}
}

// bodyOpener serves a fixed body without a content type.
type bodyOpener struct {
	body   string
	opened []string
}

func (o *bodyOpener) Open(_ context.Context, rawURL string) (*httpfetch.Response, error) {
	o.opened = append(o.opened, rawURL)
	return &httpfetch.Response{URL: rawURL, Body: io.NopCloser(strings.NewReader(o.body))}, nil
}

func TestFetcher_FTPIsAlwaysParsed(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantType  playlist.Type
		wantFiles []string
	}{
		{name: "pls", body: "[playlist]\nFile1=http://example.com/a\n", wantType: playlist.TypePLS, wantFiles: []string{"http://example.com/a"}},
		{name: "m3u", body: "#EXTM3U\nhttp://example.com/b\n", wantType: playlist.TypeM3U, wantFiles: []string{"http://example.com/b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := &bodyOpener{body: tt.body}
			fetcher := NewFetcher(opener)

			got, err := fetcher.Fetch(context.Background(), "ftp://ftp.example.com/list", false)
			require.NoError(t, err)
			assert.Equal(t, []string{"ftp://ftp.example.com/list"}, opener.opened)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantFiles, got.Files())
		})
	}
}

func TestFetcher_HTTPWithoutContentTypeIsNotParsed(t *testing.T) {
	fetcher := NewFetcher(&bodyOpener{body: "http://example.com/c\n"})

	_, err := fetcher.Fetch(context.Background(), "http://example.com/stream", false)
	assert.True(t, errors.Is(err, ErrNotPlaylist))
}

func TestFetcher_Local(t *testing.T) {
	dir := t.TempDir()
	pls := filepath.Join(dir, "radio.PLS")
	require.NoError(t, os.WriteFile(pls, []byte("File1=one.mp3\nFile2=two.mp3\n"), 0o644))
	txt := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(txt, []byte("[playlist]\nFile1=three.mp3\n"), 0o644))

	fetcher := NewFetcher(nil)

	got, err := fetcher.Fetch(context.Background(), pls, false)
	require.NoError(t, err)
	assert.Equal(t, playlist.TypePLS, got.Type)
	assert.Equal(t, []string{"one.mp3", "two.mp3"}, got.Files())

	got, err = fetcher.Fetch(context.Background(), "  "+txt+" ", false)
	require.NoError(t, err)
	assert.Equal(t, playlist.TypePLS, got.Type)
	assert.Equal(t, []string{"three.mp3"}, got.Files())

	_, err = fetcher.Fetch(context.Background(), filepath.Join(dir, "missing.m3u"), false)
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("http://example.com/a.pls"))
	assert.True(t, IsRemote("HTTPS://example.com/a.pls"))
	assert.True(t, IsRemote("ftp://example.com/a.pls"))
	assert.False(t, IsRemote("file:///tmp/a.pls"))
	assert.False(t, IsRemote("/tmp/a.pls"))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/music/a.pls")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "music", "a.pls"), got)

	got, err = ExpandPath("/tmp/../tmp/a.pls")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.pls", got)
}
