package control

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client calls the ControlService.
type Client struct {
	send      *connect.Client[wrapperspb.StringValue, emptypb.Empty]
	subscribe *connect.Client[emptypb.Empty, wrapperspb.StringValue]
	status    *connect.Client[emptypb.Empty, structpb.Struct]
}

// NewClient creates a client for the service at baseURL. A non-empty token
// is sent with every call.
func NewClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append(opts, connect.WithInterceptors(&clientToken{token: token}))

	return &Client{
		send:      connect.NewClient[wrapperspb.StringValue, emptypb.Empty](httpClient, baseURL+SendProcedure, opts...),
		subscribe: connect.NewClient[emptypb.Empty, wrapperspb.StringValue](httpClient, baseURL+SubscribeProcedure, opts...),
		status:    connect.NewClient[emptypb.Empty, structpb.Struct](httpClient, baseURL+StatusProcedure, opts...),
	}
}

// Send submits command lines.
func (c *Client) Send(ctx context.Context, lines ...string) error {
	_, err := c.send.CallUnary(ctx, connect.NewRequest(wrapperspb.String(strings.Join(lines, "\n"))))
	if err != nil {
		return errors.Wrap(err, "send failed")
	}
	return nil
}

// Follow calls fn for every response line until ctx ends, the server
// closes the stream, or fn returns an error.
func (c *Client) Follow(ctx context.Context, fn func(line string) error) error {
	stream, err := c.subscribe.CallServerStream(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return errors.Wrap(err, "subscribe failed")
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg().GetValue()); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "stream failed")
	}
	return nil
}

// Status fetches the session status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	resp, err := c.status.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, errors.Wrap(err, "status failed")
	}
	return resp.Msg.AsMap(), nil
}
