// Package feed mirrors committed session events onto NATS so that
// processes outside the server can follow approval activity.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

const DefaultSubjectPrefix = "approval.sessions"

// Message is the JSON body published for every event.
type Message struct {
	Type        session.EventType `json:"type"`
	SessionID   string            `json:"sessionId"`
	Proposal    session.Proposal  `json:"proposal"`
	PublishedAt time.Time         `json:"publishedAt"`
}

type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.Logger
	now    func() time.Time
}

// Connect dials url and keeps reconnecting in the background if the
// connection drops later.
func Connect(url, prefix string, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}

	nc, err := nats.Connect(url,
		nats.Name("approval-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("activity feed disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("activity feed reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	log.Info("activity feed connected", zap.String("url", nc.ConnectedUrl()), zap.String("prefix", prefix))

	return &Publisher{conn: nc, prefix: prefix, log: log, now: time.Now}, nil
}

func (p *Publisher) Subject(sessionID string) string {
	return p.prefix + "." + sessionID
}

func (p *Publisher) Publish(sessionID string, ev session.Event) error {
	data, err := json.Marshal(Message{
		Type:        ev.Type(),
		SessionID:   sessionID,
		Proposal:    ev.Snapshot(),
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding feed message: %w", err)
	}
	if err := p.conn.Publish(p.Subject(sessionID), data); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.Subject(sessionID), err)
	}
	p.log.Debug("published feed message",
		zap.String("subject", p.Subject(sessionID)),
		zap.String("event", string(ev.Type())),
	)
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
