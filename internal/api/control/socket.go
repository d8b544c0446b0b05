package control

import (
	"bufio"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// SocketServer accepts command lines on a unix socket. Every connected
// client receives every response line.
type SocketServer struct {
	path    string
	session Session
	feed    Feed

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewSocketServer creates a socket server listening on path once started.
func NewSocketServer(path string, s Session, feed Feed) *SocketServer {
	return &SocketServer{
		path:    path,
		session: s,
		feed:    feed,
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start removes a stale socket file, listens and accepts in the background.
func (s *SocketServer) Start() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to remove stale socket %s", s.path)
	}

	l, err := net.Listen("unix", s.path)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.path)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		_ = l.Close()
		return errors.Wrapf(err, "failed to chmod socket %s", s.path)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	zlog.Info().Msgf("control: socket listening: path=%s", s.path)
	s.wg.Add(1)
	go s.acceptLoop(l)
	return nil
}

func (s *SocketServer) acceptLoop(l net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				zlog.Debug().Msg("control: socket listener closed")
				return
			}
			zlog.Error().Err(err).Msg("control: socket accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handle(conn)
	}
}

func (s *SocketServer) handle(conn net.Conn) {
	defer s.wg.Done()

	id, lines := s.feed.Subscribe(0)
	zlog.Debug().Msgf("control: socket client %s attached", id)

	written := make(chan struct{})
	go func() {
		defer close(written)
		s.writeLines(conn, lines)
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if err := s.session.Submit(scanner.Text()); err != nil {
			zlog.Debug().Err(err).Msg("control: socket submit rejected")
			break
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		zlog.Debug().Err(err).Msg("control: socket read ended")
	}

	s.feed.Unsubscribe(id)
	<-written
	s.forget(conn)
	zlog.Debug().Msgf("control: socket client %s detached", id)
}

// writeLines copies response lines to conn until the subscription ends or
// the session finishes.
func (s *SocketServer) writeLines(conn net.Conn, lines <-chan string) {
	write := func(line string) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_, err := io.WriteString(conn, line+"\n")
		return err
	}

	for {
		select {
		case <-s.session.Done():
			_ = drain(lines, write)
			_ = conn.Close()
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := write(line); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *SocketServer) forget(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// Close stops accepting, disconnects every client and removes the socket
// file.
func (s *SocketServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	var err error
	if l != nil {
		err = l.Close()
	}
	s.wg.Wait()

	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = errors.CombineErrors(err, rmErr)
	}
	return err
}
