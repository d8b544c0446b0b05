package control

import (
	"context"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// WebSocketPath is where the websocket handler is mounted.
const WebSocketPath = "/ws"

// NewMux registers the RPC service and the websocket handler.
func NewMux(s Session, feed Feed, token string) *http.ServeMux {
	mux := http.NewServeMux()

	path, handler := NewControlServiceHandler(
		NewControlService(s, feed),
		connect.WithInterceptors(NewTokenInterceptor(token)),
	)
	mux.Handle(path, handler)
	mux.Handle(WebSocketPath, NewWebSocketHandler(s, feed, token))
	return mux
}

// HTTPServer serves the control mux over HTTP/1.1 and HTTP/2 cleartext.
type HTTPServer struct {
	addr     string
	server   *http.Server
	listener net.Listener
	errCh    chan error
}

// NewHTTPServer creates a server for addr.
func NewHTTPServer(addr string, s Session, feed Feed, token string) *HTTPServer {
	return &HTTPServer{
		addr: addr,
		server: &http.Server{
			Handler:           h2c.NewHandler(NewMux(s, feed, token), &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		},
		errCh: make(chan error, 1),
	}
}

// Start listens and serves in the background.
func (s *HTTPServer) Start() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}
	s.listener = l

	zlog.Info().Msgf("control: http listening: addr=%s", l.Addr())
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *HTTPServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Errors reports a failure of the serving goroutine.
func (s *HTTPServer) Errors() <-chan error {
	return s.errCh
}

// Shutdown stops the server gracefully.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "failed to shutdown http server")
	}
	return nil
}
