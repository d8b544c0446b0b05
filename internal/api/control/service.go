// Package control exposes the command queue and response stream to remote
// clients over Connect RPC, a websocket and a unix socket.
package control

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/emacsmirror/gaplay/internal/app/playback"
	"github.com/emacsmirror/gaplay/internal/app/session"
)

const (
	// ServiceName is the fully-qualified name of the control service.
	ServiceName = "gaplay.v1.ControlService"

	SendProcedure      = "/" + ServiceName + "/Send"
	SubscribeProcedure = "/" + ServiceName + "/Subscribe"
	StatusProcedure    = "/" + ServiceName + "/Status"
)

// Session accepts command lines and reports state.
type Session interface {
	Submit(line string) error
	Status(ctx context.Context) (playback.Snapshot, error)
	Done() <-chan struct{}
}

// Feed fans out response lines.
type Feed interface {
	Subscribe(buffer int) (string, <-chan string)
	Unsubscribe(id string)
}

// ControlService implements the ControlService RPC.
type ControlService struct {
	session Session
	feed    Feed
}

// NewControlService creates a new ControlService.
func NewControlService(s Session, feed Feed) *ControlService {
	return &ControlService{
		session: s,
		feed:    feed,
	}
}

// Send enqueues one command line per line of the request.
func (s *ControlService) Send(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[emptypb.Empty], error) {
	for _, line := range strings.Split(req.Msg.GetValue(), "\n") {
		if err := s.session.Submit(line); err != nil {
			return nil, connectError(err)
		}
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Subscribe streams response lines until the client goes away or the
// session ends.
func (s *ControlService) Subscribe(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[wrapperspb.StringValue],
) error {
	id, lines := s.feed.Subscribe(0)
	defer s.feed.Unsubscribe(id)

	zlog.Debug().Msgf("control: rpc subscriber %s attached", id)
	defer zlog.Debug().Msgf("control: rpc subscriber %s detached", id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.session.Done():
			return drain(lines, func(line string) error {
				return stream.Send(wrapperspb.String(line))
			})
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := stream.Send(wrapperspb.String(line)); err != nil {
				return err
			}
		}
	}
}

// Status reports a snapshot of the controller and pipeline.
func (s *ControlService) Status(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	snap, err := s.session.Status(ctx)
	if err != nil {
		return nil, connectError(err)
	}

	st, err := structpb.NewStruct(StatusFields(snap))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// StatusFields renders a snapshot as plain values. Unknown positions are
// null.
func StatusFields(s playback.Snapshot) map[string]any {
	return map[string]any{
		"result":       s.Result.String(),
		"state":        s.State.String(),
		"pending":      s.Pending.String(),
		"desired":      s.Desired.String(),
		"requests":     lo.Map(s.Requests, func(r string, _ int) any { return r }),
		"duration_sec": seconds(s.Duration),
		"position_sec": seconds(s.Position),
		"uri":          s.URI,
		"volume":       s.Volume,
		"recording":    s.Recording,
		"paused":       s.Paused,
	}
}

func seconds(d time.Duration) any {
	if d == playback.UnknownPosition {
		return nil
	}
	return d.Seconds()
}

// NewControlServiceHandler builds an HTTP handler that serves the service's
// procedures. The returned path is the mount point for a ServeMux.
func NewControlServiceHandler(svc *ControlService, opts ...connect.HandlerOption) (string, http.Handler) {
	send := connect.NewUnaryHandler(SendProcedure, svc.Send, opts...)
	subscribe := connect.NewServerStreamHandler(SubscribeProcedure, svc.Subscribe, opts...)
	status := connect.NewUnaryHandler(StatusProcedure, svc.Status, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case SendProcedure:
			send.ServeHTTP(w, r)
		case SubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		case StatusProcedure:
			status.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// drain sends the lines already buffered for a subscriber.
func drain(lines <-chan string, send func(line string) error) error {
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := send(line); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func connectError(err error) *connect.Error {
	switch {
	case errors.Is(err, session.ErrSessionClosed), errors.Is(err, session.ErrSessionNotRunning):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
