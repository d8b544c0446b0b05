package beepaudio

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/emacsmirror/gaplay/internal/infra/httpfetch"
)

const (
	codecMP3    = "MPEG-1 Layer 3 (MP3)"
	codecWAV    = "WAV"
	codecFLAC   = "FLAC"
	codecVorbis = "Vorbis"
)

// Streamer opens remote audio streams.
type Streamer interface {
	Stream(ctx context.Context, rawURL string) (*httpfetch.Response, error)
}

// source is an opened, decoded media resource.
type source struct {
	stream beep.StreamSeekCloser
	format beep.Format
	codec  string
	title  string
	live   bool
}

// length returns the source length, ok=false for live or unsized sources.
func (s *source) length() (int, bool) {
	if s.live {
		return 0, false
	}
	n := s.stream.Len()
	return n, n > 0
}

// openSource opens and decodes uri. file:// URIs are read from disk, http
// and https URIs are streamed through fetch.
func openSource(ctx context.Context, fetch Streamer, uri string) (*source, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid uri %s", uri)
	}

	switch strings.ToLower(u.Scheme) {
	case "file", "":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, errors.Wrap(err, "could not open resource for reading")
		}
		src, err := decode(f, codecForExtension(u.Path))
		if err != nil {
			f.Close()
			return nil, err
		}
		src.title = path.Base(u.Path)
		return src, nil

	case "http", "https":
		if fetch == nil {
			return nil, errors.Newf("no stream client for %s", uri)
		}
		resp, err := fetch.Stream(ctx, uri)
		if err != nil {
			return nil, errors.Wrap(err, "could not open stream")
		}
		src, err := decode(resp.Body, codecForContentType(resp.ContentType, u.Path))
		if err != nil {
			resp.Close()
			return nil, err
		}
		src.title = path.Base(u.Path)
		src.live = true
		return src, nil

	default:
		return nil, errors.Newf("unsupported uri scheme %q", u.Scheme)
	}
}

func decode(rc io.ReadCloser, codec string) (*source, error) {
	var (
		stream beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch codec {
	case codecWAV:
		stream, format, err = wav.Decode(rc)
	case codecFLAC:
		stream, format, err = flac.Decode(rc)
	case codecVorbis:
		stream, format, err = vorbis.Decode(rc)
	default:
		stream, format, err = mp3.Decode(rc)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode %s stream", codec)
	}
	return &source{stream: stream, format: format, codec: codec}, nil
}

func codecForExtension(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".wav", ".wave":
		return codecWAV
	case ".flac":
		return codecFLAC
	case ".ogg", ".oga":
		return codecVorbis
	default:
		return codecMP3
	}
}

func codecForContentType(contentType, p string) string {
	switch contentType {
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return codecWAV
	case "audio/mpeg", "audio/mp3":
		return codecMP3
	case "audio/flac", "audio/x-flac":
		return codecFLAC
	case "audio/ogg", "audio/vorbis", "application/ogg":
		return codecVorbis
	default:
		return codecForExtension(p)
	}
}
