// Package service implements the approval coordination service: it applies
// proposal and decision mutations to the session store and publishes the
// resulting events to live subscribers.
//
// Every mutation is committed and broadcast under a single commit lock, and
// a new subscriber snapshots history and registers for live events under
// the same lock. A subscriber therefore sees each proposal change exactly
// once, in commit order, whether it arrives as history or live.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/metrics"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

// SendFunc forwards one event to a subscriber's stream. A non-nil error
// ends the subscription.
type SendFunc func(session.Event) error

// Publisher receives every committed event in addition to live
// subscribers. Publish runs on a separate goroutine in commit order; its
// errors are logged and never fail the mutation.
type Publisher interface {
	Publish(sessionID string, ev session.Event) error
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithFeedBuffer sets how many events may wait for the Publisher.
func WithFeedBuffer(n int) Option {
	return func(s *Service) { s.feedBuffer = n }
}

type Service struct {
	store       *session.Store
	broadcaster *broadcast.Broadcaster
	log         *zap.Logger
	metrics     *metrics.Metrics
	publisher   Publisher
	feedBuffer  int
	feed        *feedQueue

	commit sync.Mutex
}

func New(store *session.Store, broadcaster *broadcast.Broadcaster, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:       store,
		broadcaster: broadcaster,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher != nil {
		s.feed = newFeedQueue(s.publisher, s.feedBuffer, log, s.metrics)
	}
	return s
}

// Close delivers queued activity feed events and stops the feed goroutine.
// Later mutations still succeed but are no longer published to the feed.
func (s *Service) Close() {
	if s.feed != nil {
		s.feed.close()
	}
}

func (s *Service) CreateSession() session.Session {
	sess := s.store.CreateSession()
	s.metrics.SessionCreated()
	s.log.Info("session created", zap.String("session_id", sess.ID))
	return sess
}

func (s *Service) GetSession(sessionID string) (session.Session, error) {
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		s.log.Warn("session lookup failed", zap.String("session_id", sessionID), zap.Error(err))
		return session.Session{}, err
	}
	s.log.Debug("session retrieved", zap.String("session_id", sessionID))
	return sess, nil
}

// SubmitProposal admits text as the session's pending proposal and
// broadcasts ProposalCreated. Nothing is broadcast on failure.
func (s *Service) SubmitProposal(sessionID, text string) (session.Proposal, error) {
	s.commit.Lock()
	defer s.commit.Unlock()

	p, err := s.store.AddProposal(sessionID, text)
	if err != nil {
		s.metrics.ProposalRefused(refusalReason(err))
		s.log.Warn("proposal refused", zap.String("session_id", sessionID), zap.Error(err))
		return session.Proposal{}, err
	}

	s.metrics.ProposalSubmitted()
	s.log.Info("proposal submitted",
		zap.String("session_id", sessionID),
		zap.String("proposal_id", p.ID),
	)
	s.publishLocked(sessionID, session.ProposalCreated{Proposal: p})
	return p, nil
}

// SubmitDecision resolves a pending proposal and broadcasts
// ProposalUpdated. A decision on an already decided proposal fails with
// session.ErrAlreadyDecided and leaves the first decision intact.
func (s *Service) SubmitDecision(sessionID, proposalID string, approved bool) (session.Proposal, error) {
	s.commit.Lock()
	defer s.commit.Unlock()

	p, err := s.store.UpdateProposalStatus(sessionID, proposalID, approved)
	if err != nil {
		s.log.Warn("decision refused",
			zap.String("session_id", sessionID),
			zap.String("proposal_id", proposalID),
			zap.Error(err),
		)
		return session.Proposal{}, err
	}

	s.metrics.Decided(approved)
	s.log.Info("proposal decided",
		zap.String("session_id", sessionID),
		zap.String("proposal_id", proposalID),
		zap.Stringer("status", p.Status),
	)
	s.publishLocked(sessionID, session.ProposalUpdated{Proposal: p})
	return p, nil
}

func (s *Service) publishLocked(sessionID string, ev session.Event) {
	s.log.Debug("broadcasting event",
		zap.String("session_id", sessionID),
		zap.String("event", string(ev.Type())),
		zap.String("proposal_id", ev.Snapshot().ID),
		zap.Int("subscribers", s.broadcaster.SubscriberCount(sessionID)),
	)
	s.broadcaster.Broadcast(sessionID, ev)

	if s.feed != nil {
		s.feed.enqueue(sessionID, ev)
	}
}

// Subscribe streams the session to send: first its full proposal history in
// arrival order, then every later event as it is committed. It blocks until
// ctx is done, send fails, or the broadcaster ends the subscription, and
// always unregisters before returning.
//
// Cancellation (ctx done or server shutdown) is reported as an error
// wrapping session.ErrCancelled.
func (s *Service) Subscribe(ctx context.Context, sessionID, clientID string, send SendFunc) error {
	s.commit.Lock()
	sess, err := s.store.GetSession(sessionID)
	if err != nil {
		s.commit.Unlock()
		s.log.Warn("subscribe failed", zap.String("session_id", sessionID), zap.String("client_id", clientID), zap.Error(err))
		return err
	}
	sub := s.broadcaster.Subscribe(sessionID)
	s.commit.Unlock()

	log := s.log.With(zap.String("session_id", sessionID), zap.String("client_id", clientID))
	log.Info("client subscribed", zap.Int("history", len(sess.Proposals)))
	defer func() {
		s.broadcaster.Unsubscribe(sessionID, sub)
		log.Info("client unsubscribed")
	}()

	for _, p := range sess.Proposals {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", session.ErrCancelled, err)
		}
		ev := session.HistoryEvent(p)
		if err := send(ev); err != nil {
			return err
		}
		log.Debug("sent history event", zap.String("event", string(ev.Type())), zap.String("proposal_id", p.ID))
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", session.ErrCancelled, ctx.Err())
		case ev, ok := <-sub.C():
			if !ok {
				return subscriptionEnded(sub.Err())
			}
			if err := send(ev); err != nil {
				return err
			}
			log.Debug("sent live event", zap.String("event", string(ev.Type())), zap.String("proposal_id", ev.Snapshot().ID))
		}
	}
}

func subscriptionEnded(err error) error {
	switch {
	case err == nil:
		return session.ErrCancelled
	case errors.Is(err, broadcast.ErrClosed):
		return fmt.Errorf("%w: %w", session.ErrCancelled, err)
	default:
		return err
	}
}

// SubscriberCount returns the number of open streams for sessionID.
func (s *Service) SubscriberCount(sessionID string) int {
	return s.broadcaster.SubscriberCount(sessionID)
}

// Stats summarizes service state for health reporting.
type Stats struct {
	Sessions    int `json:"sessions"`
	Subscribers int `json:"subscribers"`
}

func (s *Service) Stats() Stats {
	return Stats{
		Sessions:    s.store.Count(),
		Subscribers: s.broadcaster.Total(),
	}
}

func refusalReason(err error) string {
	switch {
	case errors.Is(err, session.ErrEmptyText):
		return "empty_text"
	case errors.Is(err, session.ErrProposalPending):
		return "pending"
	case errors.Is(err, session.ErrSessionNotFound):
		return "session_not_found"
	default:
		return "other"
	}
}
