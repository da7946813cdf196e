package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/metrics"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

// DefaultFeedBuffer is the number of events that may wait for the activity
// feed before new ones are dropped.
const DefaultFeedBuffer = 256

type feedItem struct {
	sessionID string
	ev        session.Event
}

// feedQueue hands committed events to the Publisher on its own goroutine,
// in commit order, so a slow feed never holds the commit lock.
type feedQueue struct {
	pub     Publisher
	items   chan feedItem
	log     *zap.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newFeedQueue(pub Publisher, size int, log *zap.Logger, m *metrics.Metrics) *feedQueue {
	if size <= 0 {
		size = DefaultFeedBuffer
	}
	q := &feedQueue{
		pub:     pub,
		items:   make(chan feedItem, size),
		log:     log,
		metrics: m,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// enqueue never blocks. Events that do not fit are dropped and counted as
// publish failures.
func (q *feedQueue) enqueue(sessionID string, ev session.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	select {
	case q.items <- feedItem{sessionID: sessionID, ev: ev}:
	default:
		q.metrics.FeedPublishFailed()
		q.log.Warn("activity feed queue full, event dropped",
			zap.String("session_id", sessionID),
			zap.String("event", string(ev.Type())),
			zap.Int("capacity", cap(q.items)),
		)
	}
}

func (q *feedQueue) run() {
	defer close(q.done)
	for item := range q.items {
		if err := q.pub.Publish(item.sessionID, item.ev); err != nil {
			q.metrics.FeedPublishFailed()
			q.log.Warn("activity feed publish failed", zap.String("session_id", item.sessionID), zap.Error(err))
		}
	}
}

// close stops accepting events and waits until queued ones are published.
func (q *feedQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()
	<-q.done
}
