package playback

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	playlistapp "github.com/emacsmirror/gaplay/internal/app/playlist"
	"github.com/emacsmirror/gaplay/internal/app/response"
)

var httpScheme = regexp.MustCompile(`(?i)^https?://`)

// loadHTTP lists the playlist behind an http(s) URL. Anything that is not
// a playlist is loaded as a stream.
func (c *Controller) loadHTTP(ctx context.Context, url string) error {
	if !httpScheme.MatchString(url) {
		return c.loadCommand(url)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	pls, err := c.fetcher.Fetch(ctx, url, false)
	if errors.Is(err, playlistapp.ErrNotPlaylist) {
		zlog.Debug().Msgf("playback: %s is not a playlist, loading as stream", url)
		return c.loadCommand(url)
	}
	if err != nil {
		return err
	}

	c.emit(response.New(response.TagPlaylistBegin, pls.TypeName(), url))
	for i, e := range pls.Entries {
		n := i + 1
		if e.File != "" {
			c.emit(response.New(response.TagPlaylistItem, n, "path", e.File))
		}
		if e.Length != nil && *e.Length != 0 {
			c.emit(response.New(response.TagPlaylistItem, n, fmt.Sprintf("duration %d", *e.Length)))
		}
		if e.Title != "" {
			c.emit(response.New(response.TagPlaylistItem, n, "title", e.Title))
		}
	}
	c.emit(response.New(response.TagPlaylistEnd))
	return nil
}

// loadShoutcast loads entry index of the playlist at location. Index 0
// picks an entry at random, a negative index picks the last one and
// indexes past the end are clamped.
func (c *Controller) loadShoutcast(ctx context.Context, index int, location string) error {
	if !hasURIScheme(location) {
		abs, err := playlistapp.ExpandPath(location)
		if err != nil {
			return err
		}
		location = abs
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
	defer cancel()

	pls, err := c.fetcher.Fetch(ctx, location, true)
	if err != nil {
		return err
	}
	if pls.Empty() {
		c.warn("playlist has no entry - %s", location)
		return nil
	}

	count := len(pls.Entries)
	switch {
	case index == 0:
		index = c.randIntN(count) + 1
	case index > 0:
		index = min(index, count)
	default:
		index = count
	}
	entry := pls.Entries[index-1]

	target := entry.File
	if target == "" {
		c.warn("playlist entry has not `file' attribute")
		return nil
	}

	switch {
	case playlistapp.IsRemote(location):
		if isLocal(target) {
			c.warn("remote playlist entry has local-path - %s", target)
			return nil
		}
	case !hasURIScheme(location) && !hasURIScheme(target):
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(location), target)
		}
	}
	zlog.Debug().Msgf("playback: playlist entry %d is %s", index, target)

	plsURI := location
	if !hasURIScheme(location) {
		plsURI = fileURI(location)
	}
	c.emit(response.New(response.TagShoutcast, plsURI, index, entry.LengthOr(-1), entry.Title))

	return c.loadCommand(target)
}
