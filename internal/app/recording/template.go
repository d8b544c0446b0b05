// Package recording provides capture file naming and the recording sink
// router.
package recording

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lestrrat-go/strftime"
	zlog "github.com/rs/zerolog/log"
)

// DefaultPattern is the capture file pattern used when none is configured.
const DefaultPattern = "~/.gaplay/rec%Y-%m-%d.wav"

var (
	// ErrNotDirectory is returned when a non-directory occupies the
	// capture directory path.
	ErrNotDirectory = errors.New("capture directory path is not a directory")
	// ErrNoFreeName is returned when every numbered candidate is taken.
	ErrNoFreeName = errors.New("no free capture file name")
)

// FileTemplate resolves capture file names from a path pattern.
type FileTemplate struct {
	pattern     string
	dateConvert bool
	maxSuffix   int
	now         func() time.Time
}

// NewFileTemplate creates a template. A leading "~" is expanded and the
// pattern is made absolute. When dateConvert is set, strftime directives
// are replaced with the current date on every resolution.
func NewFileTemplate(pattern string, dateConvert bool) (*FileTemplate, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	if pattern == "~" || strings.HasPrefix(pattern, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve home directory")
		}
		pattern = filepath.Join(home, pattern[1:])
	}

	abs, err := filepath.Abs(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve capture pattern %s", pattern)
	}

	return &FileTemplate{
		pattern:     abs,
		dateConvert: dateConvert,
		maxSuffix:   math.MaxInt32,
		now:         time.Now,
	}, nil
}

// Pattern returns the absolute pattern.
func (t *FileTemplate) Pattern() string {
	return t.pattern
}

// Next returns a path that does not exist yet. The directory is created if
// missing. When the resolved name is taken, "-1", "-2", ... is inserted
// before the extension.
func (t *FileTemplate) Next() (string, error) {
	name := t.pattern
	if t.dateConvert {
		formatted, err := strftime.Format(t.pattern, t.now())
		if err != nil {
			return "", errors.Wrapf(err, "failed to format capture pattern %s", t.pattern)
		}
		name = formatted
	}

	dir := filepath.Dir(name)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "failed to create a directory `%s'", dir)
		}
	case err != nil:
		return "", errors.Wrapf(err, "failed to stat %s", dir)
	case !info.IsDir():
		return "", errors.Wrapf(ErrNotDirectory, "failed to create a directory `%s'", dir)
	}

	if !exists(name) {
		return name, nil
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; n < t.maxSuffix; n++ {
		candidate := fmt.Sprintf("%s-%d%s", base, n, ext)
		if !exists(candidate) {
			zlog.Debug().Msgf("recording: %s taken, using %s", name, candidate)
			return candidate, nil
		}
	}
	return "", errors.Wrapf(ErrNoFreeName, "failed to create recording file for %s", name)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
