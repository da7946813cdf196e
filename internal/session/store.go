package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory source of truth for sessions and their proposals.
// All returned values are copies; callers can't mutate stored state.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	now   func() time.Time
	newID func() string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.NewString() },
	}
}

func (s *Store) CreateSession() Session {
	sess := &Session{
		ID:        s.newID(),
		CreatedAt: s.now(),
		Proposals: []Proposal{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess.clone()
}

func (s *Store) GetSession(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.clone(), nil
}

func (s *Store) SessionExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

// Proposals returns the session's proposal history in arrival order.
func (s *Store) Proposals(id string) ([]Proposal, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, err
	}
	return sess.Proposals, nil
}

// AddProposal admits a new pending proposal. It is refused while another
// proposal of the same session is still pending.
func (s *Store) AddProposal(sessionID, text string) (Proposal, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Proposal{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if pending, ok := sess.Pending(); ok {
		return Proposal{}, fmt.Errorf("%w: %s", ErrProposalPending, pending.ID)
	}

	p := Proposal{
		ID:        s.newID(),
		SessionID: sessionID,
		Text:      text,
		Status:    Pending,
		CreatedAt: s.now(),
	}
	sess.Proposals = append(sess.Proposals, p)
	return p, nil
}

func (s *Store) UpdateProposalStatus(sessionID, proposalID string, approved bool) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	i := sess.indexOf(proposalID)
	if i < 0 {
		return Proposal{}, fmt.Errorf("%w: %s in session %s", ErrProposalNotFound, proposalID, sessionID)
	}

	updated, err := sess.Proposals[i].Decide(approved, s.now())
	if err != nil {
		return Proposal{}, err
	}
	sess.Proposals[i] = updated
	return updated, nil
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
