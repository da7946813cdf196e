package mock

import (
	"context"
	"testing"
	"time"

	"github.com/kevinaud/rpc-streaming-prototype/internal/broadcast"
	"github.com/kevinaud/rpc-streaming-prototype/internal/service"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

func newService(t *testing.T) *service.Service {
	t.Helper()
	b := broadcast.NewBroadcaster(8, nil, nil)
	t.Cleanup(b.Close)
	return service.New(session.NewStore(), b, nil)
}

func TestMockGenerator_StartSubmitsFirstProposal(t *testing.T) {
	svc := newService(t)
	gen := NewGenerator(svc, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id := gen.Start(ctx)
	if id == "" || gen.SessionID() != id {
		t.Fatalf("Start() = %q, SessionID() = %q", id, gen.SessionID())
	}

	s, err := svc.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession() error: %v", err)
	}
	if len(s.Proposals) != 1 {
		t.Fatalf("len(Proposals) = %d, want 1", len(s.Proposals))
	}
	if s.Proposals[0].Text != sampleProposals[0] {
		t.Errorf("Text = %q, want %q", s.Proposals[0].Text, sampleProposals[0])
	}
	if s.Proposals[0].Status != session.Pending {
		t.Errorf("Status = %s, want PENDING", s.Proposals[0].Status)
	}
}

func TestMockGenerator_WaitsForDecision(t *testing.T) {
	svc := newService(t)
	gen := NewGenerator(svc, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := gen.Start(ctx)

	if gen.tick() {
		t.Fatal("tick() submitted while a proposal was pending")
	}

	s, _ := svc.GetSession(id)
	if _, err := svc.SubmitDecision(id, s.Proposals[0].ID, true); err != nil {
		t.Fatalf("SubmitDecision() error: %v", err)
	}

	if !gen.tick() {
		t.Fatal("tick() did not submit after the decision")
	}
	s, _ = svc.GetSession(id)
	if len(s.Proposals) != 2 || s.Proposals[1].Text != sampleProposals[1] {
		t.Errorf("Proposals = %+v, want second sample appended", s.Proposals)
	}
}

func TestMockGenerator_CyclesSamples(t *testing.T) {
	svc := newService(t)
	gen := NewGenerator(svc, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := gen.Start(ctx)

	for i := 1; i <= len(sampleProposals); i++ {
		s, _ := svc.GetSession(id)
		pending, ok := s.Pending()
		if !ok {
			t.Fatalf("round %d: no pending proposal", i)
		}
		if _, err := svc.SubmitDecision(id, pending.ID, i%2 == 0); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		gen.tick()
	}

	s, _ := svc.GetSession(id)
	last := s.Proposals[len(s.Proposals)-1]
	if last.Text != sampleProposals[0] {
		t.Errorf("after a full cycle Text = %q, want %q", last.Text, sampleProposals[0])
	}
}

func TestMockGenerator_TicksOnInterval(t *testing.T) {
	svc := newService(t)
	gen := NewGenerator(svc, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := gen.Start(ctx)

	s, _ := svc.GetSession(id)
	if _, err := svc.SubmitDecision(id, s.Proposals[0].ID, false); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, _ = svc.GetSession(id)
		if len(s.Proposals) == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("generator never submitted a follow-up proposal")
}
