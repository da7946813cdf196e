package mock

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

var sampleProposals = []string{
	"Deploy build 1432 to staging",
	"Rotate the payments API key",
	"Scale the worker pool from 4 to 8 replicas",
	"Run the nightly data migration now",
	"Purge the CDN cache for /assets",
	"Merge the release branch into main",
	"Restart the search indexer",
}

// Proposer is the part of the coordination service the generator drives.
type Proposer interface {
	CreateSession() session.Session
	SubmitProposal(sessionID, text string) (session.Proposal, error)
}

// MockGenerator keeps a demo session supplied with proposals so an approver
// always has something to decide.
type MockGenerator struct {
	svc       Proposer
	interval  time.Duration
	log       *zap.Logger
	sessionID string
	next      int
}

func NewGenerator(svc Proposer, interval time.Duration, log *zap.Logger) *MockGenerator {
	if log == nil {
		log = zap.NewNop()
	}
	return &MockGenerator{svc: svc, interval: interval, log: log}
}

// Start creates the demo session, submits the first proposal and then keeps
// submitting on every tick until ctx is done. It returns the session ID.
func (g *MockGenerator) Start(ctx context.Context) string {
	s := g.svc.CreateSession()
	g.sessionID = s.ID
	g.log.Info("mock session created", zap.String("session_id", s.ID))

	g.tick()
	go g.run(ctx)
	return s.ID
}

func (g *MockGenerator) SessionID() string {
	return g.sessionID
}

func (g *MockGenerator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick()
		}
	}
}

// tick submits the next sample unless one is still awaiting a decision.
func (g *MockGenerator) tick() bool {
	text := sampleProposals[g.next%len(sampleProposals)]
	p, err := g.svc.SubmitProposal(g.sessionID, text)
	switch {
	case errors.Is(err, session.ErrProposalPending):
		return false
	case err != nil:
		g.log.Warn("mock proposal failed", zap.Error(err))
		return false
	}
	g.next++
	g.log.Debug("mock proposal submitted", zap.String("proposal_id", p.ID), zap.String("text", text))
	return true
}
