// Package playlist provides the Playlist domain entity.
package playlist

// Type identifies the text format a playlist was decoded from.
type Type string

const (
	TypeNone Type = ""    // Empty result (nothing decoded)
	TypePLS  Type = "pls" // [playlist] key=value format
	TypeM3U  Type = "m3u" // Extended or plain M3U
)

// Entry is one playlist item. Every field is optional.
type Entry struct {
	File   string // Path or URI ("" if absent)
	Title  string // Display title ("" if absent)
	Length *int64 // Length in seconds, -1 = unknown (nil if absent)
}

// Playlist is a decoded playlist file.
type Playlist struct {
	Type            Type
	Entries         []Entry
	NumberOfEntries *int              // Declared entry count (nil if absent)
	Attributes      map[string]string // Other header keys, e.g. "version"
}

// Empty reports whether the playlist holds no entries.
func (p *Playlist) Empty() bool {
	return p == nil || len(p.Entries) == 0
}

// TypeName returns the format name, "-" for the empty result.
func (p *Playlist) TypeName() string {
	if p == nil || p.Type == TypeNone {
		return "-"
	}
	return string(p.Type)
}

// Files returns the file of every entry, in order.
func (p *Playlist) Files() []string {
	files := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		files[i] = e.File
	}
	return files
}

// TotalLength returns the sum of known entry lengths in seconds.
func (p *Playlist) TotalLength() int64 {
	var total int64
	for _, e := range p.Entries {
		if e.Length != nil && *e.Length > 0 {
			total += *e.Length
		}
	}
	return total
}

// LengthOr returns the entry length, or fallback when absent.
func (e Entry) LengthOr(fallback int64) int64 {
	if e.Length == nil {
		return fallback
	}
	return *e.Length
}
