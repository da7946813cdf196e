// Package broadcast fans session events out to every open subscription of
// a session. Each subscription owns a bounded buffer; a send never blocks
// the broadcaster, and a subscriber whose buffer is full is dropped instead
// of stalling everyone else.
package broadcast

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/metrics"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

const DefaultBufferSize = 64

var (
	ErrSlowConsumer = errors.New("subscriber too slow, dropped")
	ErrClosed       = errors.New("broadcaster closed")
)

// Subscription is a live registration for one session's events. Read from
// C until it is closed, then consult Err for the reason.
type Subscription struct {
	sessionID string
	ch        chan session.Event

	mu  sync.Mutex
	err error
}

// C delivers events in broadcast order. It is closed when the subscription
// ends for any reason.
func (s *Subscription) C() <-chan session.Event {
	return s.ch
}

func (s *Subscription) SessionID() string {
	return s.sessionID
}

// Err reports why the subscription ended: nil after a plain Unsubscribe,
// ErrSlowConsumer or ErrClosed otherwise.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// end closes the channel. Callers hold the broadcaster's write lock and
// have just removed s from the registry, so it runs once per subscription.
func (s *Subscription) end(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

type Broadcaster struct {
	mu       sync.RWMutex
	sessions map[string]map[*Subscription]struct{}
	closed   bool

	bufferSize int
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewBroadcaster(bufferSize int, log *zap.Logger, m *metrics.Metrics) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		sessions:   make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
		log:        log,
		metrics:    m,
	}
}

// Subscribe registers a new subscription for sessionID. After Close it
// returns an already-ended subscription.
func (b *Broadcaster) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		sessionID: sessionID,
		ch:        make(chan session.Event, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.end(ErrClosed)
		return sub
	}

	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.sessions[sessionID] = subs
	}
	subs[sub] = struct{}{}
	b.metrics.SubscriberAdded()
	b.log.Debug("subscriber registered",
		zap.String("session_id", sessionID),
		zap.Int("subscribers", len(subs)),
	)
	return sub
}

// Unsubscribe removes sub. Unknown or already removed subscriptions are
// ignored.
func (b *Broadcaster) Unsubscribe(sessionID string, sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(sessionID, sub, nil)
}

// Broadcast delivers ev to every current subscriber of sessionID. Sends are
// non-blocking, so holding the read lock across them cannot stall on a
// slow reader; subscribers that can't accept the event are dropped after
// the pass.
func (b *Broadcaster) Broadcast(sessionID string, ev session.Event) {
	var slow []*Subscription

	b.mu.RLock()
	for sub := range b.sessions[sessionID] {
		select {
		case sub.ch <- ev:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range slow {
		if b.removeLocked(sessionID, sub, ErrSlowConsumer) {
			b.metrics.SubscriberDropped()
			b.log.Warn("subscriber too slow, dropping",
				zap.String("session_id", sessionID),
				zap.String("event", string(ev.Type())),
			)
		}
	}
}

// SubscriberCount returns the number of open subscriptions for sessionID.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}

// Total returns the number of open subscriptions across all sessions.
func (b *Broadcaster) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.sessions {
		n += len(subs)
	}
	return n
}

// Close ends every subscription with ErrClosed and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sessionID, subs := range b.sessions {
		for sub := range subs {
			b.removeLocked(sessionID, sub, ErrClosed)
		}
	}
}

func (b *Broadcaster) removeLocked(sessionID string, sub *Subscription, reason error) bool {
	subs, ok := b.sessions[sessionID]
	if !ok {
		return false
	}
	if _, ok := subs[sub]; !ok {
		return false
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.sessions, sessionID)
	}
	sub.end(reason)
	b.metrics.SubscriberRemoved()
	return true
}
