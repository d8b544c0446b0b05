// Package playlist decodes PLS and M3U playlists and retrieves them from
// local files or HTTP servers.
package playlist

import (
	"bufio"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/domain/playlist"
)

const (
	plsHeader = "[playlist]"

	// Lines longer than this that contain NUL are taken as binary data.
	binaryLineLimit = 1024
)

var (
	errBinary = errors.New("binary content")

	plsItem   = regexp.MustCompile(`^(file|title|length)(\d+)`)
	m3uExtinf = regexp.MustCompile(`(?i)^#extinf:`)
)

// Decode reads a playlist from r. When t is TypeNone the format is detected
// from the first non-blank line: "[playlist]" selects PLS, anything else
// M3U. Binary content yields the empty playlist. Only read errors are
// returned as errors.
func Decode(r io.Reader, t playlist.Type) (*playlist.Playlist, error) {
	br := bufio.NewReader(r)

	var unread string
	if t == playlist.TypeNone {
		line, err := firstLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return &playlist.Playlist{}, nil
		}
		if strings.ToLower(strings.TrimSpace(line)) == plsHeader {
			t = playlist.TypePLS
		} else {
			t = playlist.TypeM3U
			unread = line
		}
	}

	var (
		p   *playlist.Playlist
		err error
	)
	if t == playlist.TypePLS {
		p, err = decodePLS(br)
	} else {
		p, err = decodeM3U(br, unread)
	}

	if errors.Is(err, errBinary) {
		zlog.Debug().Msgf("playlist: not a %s playlist, binary content", t)
		return &playlist.Playlist{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// firstLine returns the first non-blank line including its terminator, or
// "" at end of input.
func firstLine(br *bufio.Reader) (string, error) {
	for {
		line, err := br.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			return line, nil
		}
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", errors.Wrap(err, "failed to read playlist")
		}
	}
}

// eachLine calls fn for every line of br, terminators included.
func eachLine(br *bufio.Reader, fn func(string) error) error {
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read playlist")
		}
	}
}

func checkBinary(line string) error {
	if len(line) > binaryLineLimit && strings.IndexByte(line, 0) >= 0 {
		return errBinary
	}
	return nil
}

func chop(line string) string {
	return strings.TrimRight(line, "\r\n")
}

func parseLength(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil
}

func decodePLS(br *bufio.Reader) (*playlist.Playlist, error) {
	p := &playlist.Playlist{
		Type:       playlist.TypePLS,
		Attributes: make(map[string]string),
	}
	entries := make(map[int]*playlist.Entry)

	err := eachLine(br, func(line string) error {
		if err := checkBinary(line); err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}

		key, value, ok := strings.Cut(chop(line), "=")
		if !ok {
			return nil
		}
		key = strings.ToLower(strings.TrimSpace(key))

		if m := plsItem.FindStringSubmatch(key); m != nil {
			index, err := strconv.Atoi(m[2])
			if err != nil {
				return nil
			}
			setPLSField(entries, index, m[1], value)
			return nil
		}

		if key == "numberofentries" {
			// Only the text up to the next '=' counts here.
			first, _, _ := strings.Cut(value, "=")
			if n, err := strconv.Atoi(strings.TrimSpace(first)); err == nil {
				p.NumberOfEntries = &n
			}
			return nil
		}

		p.Attributes[key] = value
		return nil
	})
	if err != nil {
		return nil, err
	}

	indexes := make([]int, 0, len(entries))
	for i := range entries {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	p.Entries = make([]playlist.Entry, 0, len(indexes))
	for _, i := range indexes {
		p.Entries = append(p.Entries, *entries[i])
	}
	return p, nil
}

// setPLSField stores one keyN=value pair. A length that is not an integer
// leaves the entry untouched.
func setPLSField(entries map[int]*playlist.Entry, index int, field, value string) {
	if field == "length" {
		n, ok := parseLength(value)
		if !ok {
			return
		}
		entry(entries, index).Length = &n
		return
	}

	e := entry(entries, index)
	if field == "file" {
		e.File = value
	} else {
		e.Title = value
	}
}

func entry(entries map[int]*playlist.Entry, index int) *playlist.Entry {
	e, ok := entries[index]
	if !ok {
		e = &playlist.Entry{}
		entries[index] = e
	}
	return e
}

func decodeM3U(br *bufio.Reader, unread string) (*playlist.Playlist, error) {
	p := &playlist.Playlist{
		Type:    playlist.TypeM3U,
		Entries: make([]playlist.Entry, 0),
	}
	var extinf playlist.Entry

	parse := func(line string) error {
		if err := checkBinary(line); err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
		line = chop(line)

		if line[0] != '#' {
			extinf.File = line
			p.Entries = append(p.Entries, extinf)
			extinf = playlist.Entry{}
			return nil
		}

		loc := m3uExtinf.FindStringIndex(line)
		if loc == nil {
			return nil
		}
		length, title, hasTitle := strings.Cut(line[loc[1]:], ",")
		if n, ok := parseLength(length); ok {
			extinf.Length = &n
		}
		if hasTitle {
			extinf.Title = title
		}
		return nil
	}

	if unread != "" {
		if err := parse(unread); err != nil {
			return nil, err
		}
	}
	if err := eachLine(br, parse); err != nil {
		return nil, err
	}

	n := len(p.Entries)
	p.NumberOfEntries = &n
	return p, nil
}
