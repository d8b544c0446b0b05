package session

import (
	"context"
	"os"
	"os/signal"

	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/app/command"
)

// WatchSignals turns hang-up and termination signals into quit. Interrupts
// are logged and otherwise ignored; job control stop is ignored.
func (m *Manager) WatchSignals(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, append(quitSignals, os.Interrupt)...)
	if len(ignoredSignals) > 0 {
		signal.Ignore(ignoredSignals...)
	}

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case sig := <-ch:
				m.handleSignal(sig)
			}
		}
	}()
}

func (m *Manager) handleSignal(sig os.Signal) {
	if sig == os.Interrupt {
		zlog.Warn().Msg("session: interrupt ignored")
		return
	}
	zlog.Info().Msgf("session: received %v, quitting", sig)
	m.queue.Enqueue(command.New(command.NameQuit))
}
