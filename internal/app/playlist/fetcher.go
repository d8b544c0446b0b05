package playlist

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/playlist"
	"github.com/emacsmirror/gaplay/internal/infra/httpfetch"
)

// Content types announcing a playlist body.
const (
	ContentTypePLS = "audio/x-scpls"
	ContentTypeM3U = "audio/x-mpegurl"
)

// ErrNotPlaylist is returned for remote resources whose content type does
// not announce a playlist when parsing was not forced.
var ErrNotPlaylist = errors.New("not a playlist")

var remoteScheme = regexp.MustCompile(`(?i)^(https?|ftp)://`)

// Opener opens http, https and ftp resources. *httpfetch.Client implements
// it.
type Opener interface {
	Open(ctx context.Context, rawURL string) (*httpfetch.Response, error)
}

// Fetcher retrieves and decodes playlists from local paths or URLs.
type Fetcher struct {
	opener Opener
}

// NewFetcher creates a fetcher using opener for remote playlists.
func NewFetcher(opener Opener) *Fetcher {
	return &Fetcher{opener: opener}
}

// IsRemote reports whether location is an http, https or ftp URL.
func IsRemote(location string) bool {
	return remoteScheme.MatchString(strings.TrimSpace(location))
}

// Fetch retrieves the playlist at location. Remote playlists are typed by
// content type; when that announces neither PLS nor M3U and force is false,
// ErrNotPlaylist is returned. ftp playlists carry no content type and are
// always parsed. Local playlists are typed by extension and fall back to
// content detection.
func (f *Fetcher) Fetch(ctx context.Context, location string, force bool) (*playlist.Playlist, error) {
	location = strings.TrimSpace(location)

	if m := remoteScheme.FindStringSubmatch(location); m != nil {
		ftp := strings.EqualFold(m[1], "ftp")
		return f.fetchRemote(ctx, location, force || ftp)
	}
	return f.fetchLocal(location)
}

func (f *Fetcher) fetchRemote(ctx context.Context, location string, force bool) (*playlist.Playlist, error) {
	if f.opener == nil {
		return nil, errors.New("remote playlists are not available")
	}

	resp, err := f.opener.Open(ctx, location)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", location)
	}
	defer resp.Close()

	var t playlist.Type
	switch resp.ContentType {
	case ContentTypePLS:
		t = playlist.TypePLS
	case ContentTypeM3U:
		t = playlist.TypeM3U
	}

	if t == playlist.TypeNone && !force {
		zlog.Debug().Msgf("playlist: %s has content-type %q", location, resp.ContentType)
		return nil, ErrNotPlaylist
	}
	return Decode(resp.Body, t)
}

func (f *Fetcher) fetchLocal(location string) (*playlist.Playlist, error) {
	path, err := ExpandPath(location)
	if err != nil {
		return nil, err
	}

	var t playlist.Type
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pls":
		t = playlist.TypePLS
	case ".m3u":
		t = playlist.TypeM3U
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open playlist %s", path)
	}
	defer file.Close()

	return Decode(file, t)
}

// ExpandPath expands a leading "~" and makes path absolute.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "failed to resolve home directory")
		}
		path = filepath.Join(home, path[1:])
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", path)
	}
	return abs, nil
}
