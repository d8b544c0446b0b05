package session

import (
	"bufio"
	"io"

	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/app/command"
)

// ReadInput feeds command lines from r into the queue until quit is read.
// End of input enqueues quit; a read error enqueues an error report and
// then quit.
func (m *Manager) ReadInput(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if cmd, ok := command.Tokenize(line); ok {
			zlog.Debug().Msgf("session: input %q", cmd.String())
			m.queue.Enqueue(cmd)
			if cmd.Name == command.NameQuit {
				return
			}
		}

		switch {
		case err == io.EOF:
			zlog.Debug().Msg("session: end of input")
			m.queue.Enqueue(command.New(command.NameQuit))
			return
		case err != nil:
			zlog.Error().Err(err).Msg("session: input read failed")
			m.queue.Enqueue(command.New(command.NameError, err.Error()))
			m.queue.Enqueue(command.New(command.NameQuit))
			return
		}
	}
}
