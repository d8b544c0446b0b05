// Package session runs the command loop that owns the playback controller.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/emacsmirror/gaplay/internal/app/command"
	"github.com/emacsmirror/gaplay/internal/app/playback"
	"github.com/emacsmirror/gaplay/internal/app/response"
	"github.com/emacsmirror/gaplay/internal/domain/pipeline"
)

const (
	// ProgramName is reported in the READY line.
	ProgramName = "gaplay"
	// Copyright is reported in the READY line.
	Copyright = "Copyright (c) 2012 Tetsu Takaishi.  All rights reserved."
)

var (
	ErrSessionNotRunning = errors.New("session is not running")
	ErrSessionClosed     = errors.New("session is closed")
)

// Config holds session configuration.
type Config struct {
	PollInterval time.Duration // Position watch period
	Version      string
}

// Manager serializes every command, pipeline event and position poll onto
// a single goroutine.
type Manager struct {
	mu      sync.Mutex
	started bool

	// Configuration
	config Config

	// Components
	queue      *command.Queue
	controller *playback.Controller
	pipe       pipeline.Pipeline
	out        response.Emitter

	// Channels
	snapshots chan chan playback.Snapshot
	rearm     chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewManager creates a new session manager.
func NewManager(
	cfg Config,
	queue *command.Queue,
	controller *playback.Controller,
	pipe pipeline.Pipeline,
	out response.Emitter,
) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:     cfg,
		queue:      queue,
		controller: controller,
		pipe:       pipe,
		out:        out,
		snapshots:  make(chan chan playback.Snapshot),
		rearm:      make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Start announces READY and starts the command loop. The loop ends after
// quit is dispatched, ctx is cancelled, or Close is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return errors.New("session already started")
	}
	m.started = true

	go func() {
		select {
		case <-ctx.Done():
			m.cancel()
		case <-m.done:
		}
	}()

	m.out.Emit(response.New(response.TagReady, ProgramName, "version:"+m.config.Version, Copyright))
	zlog.Info().Msgf("session: started version=%s poll_interval=%v", m.config.Version, m.config.PollInterval)

	go m.loop()
	return nil
}

// Done returns a channel closed once the loop has exited and QUIT was sent.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close stops the loop and waits for it to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	m.cancel()
	if started {
		<-m.done
	}
}

// Submit tokenizes line and enqueues the resulting command. Blank lines are
// ignored.
func (m *Manager) Submit(line string) error {
	select {
	case <-m.done:
		return ErrSessionClosed
	default:
	}

	cmd, ok := command.Tokenize(line)
	if !ok {
		return nil
	}
	m.queue.Enqueue(cmd)
	return nil
}

// Status returns a snapshot taken on the loop goroutine.
func (m *Manager) Status(ctx context.Context) (playback.Snapshot, error) {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		return playback.Snapshot{}, ErrSessionNotRunning
	}

	reply := make(chan playback.Snapshot, 1)
	select {
	case m.snapshots <- reply:
	case <-m.done:
		return playback.Snapshot{}, ErrSessionClosed
	case <-ctx.Done():
		return playback.Snapshot{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return playback.Snapshot{}, ctx.Err()
	}
}

// loop is the only goroutine that touches the controller.
func (m *Manager) loop() {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("session: loop panicked: %v", r)
			m.out.Emit(response.Errorf("%v", r))
			zlog.Info().Msg("session: restarting loop")
			go m.loop()
			return
		}
		m.finish()
	}()

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	events := m.pipe.Events()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.queue.Ready():
			if m.dispatchOne() {
				return
			}
		case <-m.rearm:
			if m.dispatchOne() {
				return
			}
		case ev, ok := <-events:
			if !ok {
				zlog.Debug().Msg("session: pipeline event channel closed")
				events = nil
				continue
			}
			m.controller.HandleEvent(ev)
		case <-ticker.C:
			m.controller.WatchPosition()
		case reply := <-m.snapshots:
			reply <- m.controller.Snapshot()
		}
	}
}

// dispatchOne runs one coalesced command and reports whether the loop
// should stop.
func (m *Manager) dispatchOne() bool {
	cmd, ok := m.queue.Dequeue()
	if !ok {
		return false
	}

	m.controller.Dispatch(m.ctx, cmd)
	if m.controller.Quitting() {
		return true
	}

	if m.queue.Len() > 0 {
		select {
		case m.rearm <- struct{}{}:
		default:
		}
	}
	return false
}

// finish stops playback if quit never ran, then reports QUIT.
func (m *Manager) finish() {
	if !m.controller.Quitting() {
		zlog.Info().Msg("session: stopping without quit command")
		m.controller.Dispatch(context.Background(), command.New(command.NameQuit))
	}
	m.cancel()

	m.out.Emit(response.New(response.TagQuit))
	zlog.Info().Msg("session: terminated")
	close(m.done)
}
