package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/config"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

var errClientGone = errors.New("client disconnected")

// streamConn owns the write side of one subscribe websocket. Frames are
// written only from the subscribing goroutine; pings go through
// WriteControl, which gorilla/websocket allows concurrently.
type streamConn struct {
	conn *websocket.Conn
	cfg  config.StreamConfig
	seq  uint64
	log  *zap.Logger
}

func (c *streamConn) send(ev session.Event) error {
	c.seq++
	return c.write(WSMessage{Type: MessageType(ev.Type()), Seq: c.seq, Payload: ev.Snapshot()})
}

func (c *streamConn) write(msg WSMessage) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

// readLoop drains client frames so pongs and close frames are processed.
// It cancels the stream when the client goes away.
func (c *streamConn) readLoop(cancel context.CancelCauseFunc) {
	defer cancel(errClientGone)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("stream read ended", zap.Error(err))
			}
			return
		}
	}
}

func (c *streamConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// finish reports why the stream ended, unless the client is the one who
// left, and closes the connection.
func (c *streamConn) finish(ctx context.Context, err error) {
	defer c.conn.Close()
	if errors.Is(context.Cause(ctx), errClientGone) {
		return
	}

	_, code := classify(err)
	if werr := c.write(WSMessage{Type: MsgError, Payload: ErrorPayload{Code: code, Message: err.Error()}}); werr != nil {
		return
	}
	closeCode := websocket.CloseInternalServerErr
	switch code {
	case CodeCancelled:
		closeCode = websocket.CloseGoingAway
	case CodeUnavailable:
		closeCode = websocket.CloseTryAgainLater
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, code), deadline)
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if _, err := s.svc.GetSession(sessionID); err != nil {
		s.respondError(w, r, err)
		return
	}
	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	log := loggerFrom(r.Context(), s.log).With(zap.String("session_id", sessionID), zap.String("client_id", clientID))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	log.Info("websocket client connected")

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	c := &streamConn{conn: conn, cfg: s.config.Stream, log: log}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop(cancel)
	}()
	go func() {
		defer wg.Done()
		c.pingLoop(ctx)
	}()

	err = s.svc.Subscribe(ctx, sessionID, clientID, c.send)
	c.finish(ctx, err)
	cancel(nil)
	wg.Wait()
	log.Info("websocket client disconnected", zap.Uint64("frames", c.seq), zap.NamedError("reason", err))
}
