package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/ws"
)

const writeTimeout = 10 * time.Second

// ErrSequenceGap means the stream skipped a frame. The caller should
// resubscribe to rebuild its view from history.
var ErrSequenceGap = errors.New("stream sequence gap")

// Stream is an open Subscribe call. Recv must be called from one goroutine;
// Close may be called from any.
type Stream struct {
	conn      *websocket.Conn
	sessionID string
	ctx       context.Context
	seq       uint64

	closeOnce sync.Once
	done      chan struct{}
}

// Subscribe opens the session's event stream: full history first, then live
// events. Cancelling ctx closes the stream.
func (c *Client) Subscribe(ctx context.Context, sessionID string) (*Stream, error) {
	u, err := c.streamURL(sessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	s := &Stream{conn: conn, sessionID: sessionID, ctx: ctx, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (c *Client) streamURL(sessionID string) (string, error) {
	u, err := url.Parse(c.baseURL + sessionPath(sessionID) + "/subscribe")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("client_id", c.clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Stream) SessionID() string {
	return s.sessionID
}

// Seq returns the sequence number of the last event received.
func (s *Stream) Seq() uint64 {
	return s.seq
}

// Recv blocks for the next event. It returns io.EOF when the server closes
// the stream normally, an *APIError when the server ends it with an error
// frame, and an error wrapping session.ErrCancelled once ctx is done.
func (s *Stream) Recv() (session.Event, error) {
	for {
		var msg ws.RawMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			return nil, s.readError(err)
		}

		switch msg.Type {
		case ws.MsgProposalCreated, ws.MsgProposalUpdated:
			if msg.Seq != s.seq+1 {
				return nil, fmt.Errorf("%w: got %d after %d", ErrSequenceGap, msg.Seq, s.seq)
			}
			s.seq = msg.Seq
			var p session.Proposal
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return nil, fmt.Errorf("decoding %s payload: %w", msg.Type, err)
			}
			if msg.Type == ws.MsgProposalCreated {
				return session.ProposalCreated{Proposal: p}, nil
			}
			return session.ProposalUpdated{Proposal: p}, nil
		case ws.MsgError:
			var p ws.ErrorPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				return nil, fmt.Errorf("decoding error frame: %w", err)
			}
			return nil, &APIError{Code: p.Code, Message: p.Message}
		}
	}
}

func (s *Stream) readError(err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", session.ErrCancelled, ctxErr)
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		return io.EOF
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ws.KindForCode(ce.Text) != nil {
		return &APIError{Code: ce.Text, Message: "stream closed"}
	}
	return err
}

// Close ends the stream with a normal close frame.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		deadline := time.Now().Add(writeTimeout)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = s.conn.Close()
	})
	return err
}
