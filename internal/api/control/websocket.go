package control

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// WebSocketHandler mirrors the response stream to a websocket and accepts
// command lines as text frames.
type WebSocketHandler struct {
	session  Session
	feed     Feed
	token    string
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a websocket handler. A non-empty token must be
// given as the token query parameter or the X-Control-Token header.
func NewWebSocketHandler(s Session, feed Feed, token string) *WebSocketHandler {
	return &WebSocketHandler{
		session: s,
		feed:    feed,
		token:   token,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	got := r.URL.Query().Get(TokenParam)
	if got == "" {
		got = r.Header.Get(TokenHeader)
	}
	if !checkToken(got, h.token) {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("control: websocket upgrade failed")
		return
	}
	defer conn.Close()

	id, lines := h.feed.Subscribe(0)
	defer h.feed.Unsubscribe(id)
	zlog.Debug().Msgf("control: websocket client %s attached from %s", id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writePump(ctx, cancel, conn, lines)
	h.readPump(ctx, conn)
	zlog.Debug().Msgf("control: websocket client %s detached", id)
}

// readPump submits every text frame until the connection fails.
func (h *WebSocketHandler) readPump(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				zlog.Debug().Err(err).Msg("control: websocket read ended")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if err := h.session.Submit(string(data)); err != nil {
			zlog.Debug().Err(err).Msg("control: websocket submit rejected")
			return
		}
	}
}

// writePump sends response lines and keepalive pings.
func (h *WebSocketHandler) writePump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, lines <-chan string) {
	defer cancel()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.session.Done():
			drain(lines, func(line string) error {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				return conn.WriteMessage(websocket.TextMessage, []byte(line))
			})
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
			_ = conn.Close()
			return
		case line, ok := <-lines:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				_ = conn.Close()
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
