// Package command provides the remote control command model: line
// tokenizing, typed command variants, and the coalescing command queue.
package command

import (
	"strings"
	"unicode"
)

// Command names accepted on the input channel.
const (
	NameLoad          = "load"
	NamePlay          = "play"
	NameStop          = "stop"
	NamePause         = "pause"
	NameReplay        = "replay"
	NameRecord        = "rec"
	NameGain          = "gain"
	NameSkip          = "skip"
	NameJump          = "jump"
	NameLoadHTTP      = "load-http"
	NameLoadShoutcast = "load-shoutcast"
	NameState         = "state"
	NameInfo          = "info"
	NameQuit          = "quit"

	// Internal and diagnostic commands.
	NameExplicitPause  = "_pause"
	NameExplicitResume = "_resume"
	NameError          = "error"
	NameWarning        = "warning"
	NameRaise          = "raise"
)

// Command is a raw command as read from the input channel.
type Command struct {
	Name string
	Args []string
}

// New creates a command from a name and its arguments.
func New(name string, args ...string) Command {
	return Command{Name: name, Args: args}
}

// Tokenize splits an input line into a command name and the rest of the
// line. The rest is kept as a single argument so that paths with spaces
// survive. Blank lines yield ok=false.
func Tokenize(line string) (Command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{}, false
	}

	idx := strings.IndexFunc(line, unicode.IsSpace)
	if idx < 0 {
		return Command{Name: line}, true
	}

	rest := strings.TrimLeftFunc(line[idx:], unicode.IsSpace)
	return Command{Name: line[:idx], Args: []string{rest}}, true
}

// Arg returns the i-th argument or "".
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// String renders the command as an input line.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}
