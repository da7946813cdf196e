// Package cli implements the proposer's interactive loop and the
// approval-cli command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kevinaud/rpc-streaming-prototype/internal/client"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

// ErrStreamEnded means the subscription closed before the proposal was
// decided.
var ErrStreamEnded = errors.New("stream ended before a decision arrived")

// Stream is an open subscription.
type Stream interface {
	Recv() (session.Event, error)
	Close() error
}

// API is the part of the server the proposer talks to.
type API interface {
	CreateSession(ctx context.Context) (session.Session, error)
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	SubmitProposal(ctx context.Context, sessionID, text string) (session.Proposal, error)
	Subscribe(ctx context.Context, sessionID string) (Stream, error)
}

// FromClient adapts a client.Client to API.
func FromClient(c *client.Client) API {
	return clientAPI{c}
}

type clientAPI struct{ *client.Client }

func (a clientAPI) Subscribe(ctx context.Context, sessionID string) (Stream, error) {
	st, err := a.Client.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Proposer drives one proposer terminal: it submits proposals and waits for
// each decision before asking for the next.
type Proposer struct {
	api     API
	prompt  *Prompter
	display *Display
	log     *zap.Logger
}

func NewProposer(api API, prompt *Prompter, display *Display, log *zap.Logger) *Proposer {
	return &Proposer{api: api, prompt: prompt, display: display, log: log}
}

// ResolveSession asks whether to start a new session or continue an
// existing one and returns its ID.
func (p *Proposer) ResolveSession(ctx context.Context) (string, error) {
	action, err := p.prompt.Choose(ctx, "What would you like to do?", []string{"start", "continue"}, "start")
	if err != nil {
		return "", err
	}

	if action == "start" {
		s, err := p.api.CreateSession(ctx)
		if err != nil {
			return "", fmt.Errorf("create session: %w", err)
		}
		p.log.Info("session created", zap.String("session_id", s.ID))
		p.display.SessionCreated(s.ID)
		return s.ID, nil
	}

	for {
		id, err := p.prompt.Ask(ctx, "Enter Session ID")
		if err != nil {
			return "", err
		}
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ok, err := p.api.SessionExists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("look up session: %w", err)
		}
		if !ok {
			p.display.Error(fmt.Sprintf("session %s not found", id))
			continue
		}
		p.display.Connected(id)
		return id, nil
	}
}

// Run loops until input ends or ctx is cancelled, both of which return nil.
func (p *Proposer) Run(ctx context.Context, sessionID string) error {
	p.display.Info("Ready to submit proposals. Press Ctrl+C to exit.")

	for {
		text, err := p.prompt.Ask(ctx, "Enter your proposal")
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				p.display.Exit()
				return nil
			}
			return err
		}
		if strings.TrimSpace(text) == "" {
			p.display.Info("Empty proposal skipped. Please enter some text.")
			continue
		}

		proposal, err := p.api.SubmitProposal(ctx, sessionID, text)
		if err != nil {
			if errors.Is(err, session.ErrInvalidState) || errors.Is(err, session.ErrInvalidArgument) {
				p.display.Error(err.Error())
				continue
			}
			if ctx.Err() != nil {
				p.display.Exit()
				return nil
			}
			return fmt.Errorf("submit proposal: %w", err)
		}
		p.log.Debug("proposal submitted", zap.String("session_id", sessionID), zap.String("proposal_id", proposal.ID))
		p.display.ProposalSent(proposal)
		p.display.Waiting()

		approved, err := p.awaitDecision(ctx, sessionID, proposal.ID)
		switch {
		case ctx.Err() != nil:
			p.display.Exit()
			return nil
		case errors.Is(err, ErrStreamEnded):
			p.display.Info("Connection interrupted. Please check the server.")
		case err != nil:
			p.display.Info(fmt.Sprintf("Error waiting for decision: %v", err))
		default:
			p.display.Decision(approved)
		}
	}
}

// awaitDecision subscribes after submitting. History replay covers a
// decision that lands before the stream opens.
func (p *Proposer) awaitDecision(ctx context.Context, sessionID, proposalID string) (bool, error) {
	st, err := p.api.Subscribe(ctx, sessionID)
	if err != nil {
		return false, err
	}
	defer st.Close()

	for {
		ev, err := st.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, ErrStreamEnded
			}
			return false, err
		}
		if ev.Type() != session.EventProposalUpdated {
			continue
		}
		snap := ev.Snapshot()
		if snap.ID == proposalID && snap.Status.IsTerminal() {
			p.log.Debug("decision received", zap.String("proposal_id", proposalID), zap.Stringer("status", snap.Status))
			return snap.Status == session.Approved, nil
		}
	}
}
