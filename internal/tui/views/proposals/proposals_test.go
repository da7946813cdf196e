package proposals

import (
	"strings"
	"testing"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

func created(id, text string) session.Event {
	return session.ProposalCreated{Proposal: session.Proposal{ID: id, Text: text, Status: session.Pending}}
}

func updated(id, text string, status session.Status) session.Event {
	return session.ProposalUpdated{Proposal: session.Proposal{ID: id, Text: text, Status: status}}
}

func TestApplyUpsertsInArrivalOrder(t *testing.T) {
	m := New()
	m.Apply(updated("a", "first", session.Approved))
	m.Apply(created("b", "second"))
	m.Apply(updated("b", "second", session.Rejected))

	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	items := m.Items()
	if items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("order = %s,%s, want a,b", items[0].ID, items[1].ID)
	}
	if items[1].Status != session.Rejected {
		t.Errorf("b status = %s, want REJECTED", items[1].Status)
	}
}

func TestPendingAndCounts(t *testing.T) {
	m := New()
	if _, ok := m.Pending(); ok {
		t.Fatal("empty model reported a pending proposal")
	}

	m.Apply(updated("a", "x", session.Approved))
	m.Apply(updated("b", "y", session.Rejected))
	m.Apply(created("c", "z"))

	p, ok := m.Pending()
	if !ok || p.ID != "c" {
		t.Errorf("Pending() = %v,%v, want c", p.ID, ok)
	}
	if m.Selected != 2 {
		t.Errorf("Selected = %d, want the new pending proposal", m.Selected)
	}
	pending, approved, rejected := m.Counts()
	if pending != 1 || approved != 1 || rejected != 1 {
		t.Errorf("Counts() = %d,%d,%d, want 1,1,1", pending, approved, rejected)
	}
}

func TestNavigationWraps(t *testing.T) {
	m := New()
	m.Down()
	if m.Selected != 0 {
		t.Fatal("navigation on empty list should be a no-op")
	}
	m.Apply(updated("a", "x", session.Approved))
	m.Apply(updated("b", "y", session.Approved))
	m.Up()
	if m.Selected != 1 {
		t.Errorf("Up() from 0 = %d, want 1", m.Selected)
	}
	m.Down()
	if m.Selected != 0 {
		t.Errorf("Down() from 1 = %d, want 0", m.Selected)
	}
}

func TestReset(t *testing.T) {
	m := New()
	m.Apply(created("a", "x"))
	m.Reset()
	if m.Len() != 0 || m.Selected != 0 {
		t.Errorf("after Reset Len=%d Selected=%d", m.Len(), m.Selected)
	}
	m.Apply(created("a", "x"))
	if m.Len() != 1 {
		t.Error("Reset should clear the ID index")
	}
}

func TestView(t *testing.T) {
	m := New()
	m.Width = 80
	if v := m.View(20); !strings.Contains(v, "Waiting for proposals") {
		t.Error("empty view should show the waiting message")
	}

	m.Apply(created("0123456789", "deploy to prod"))
	v := m.View(20)
	for _, want := range []string{"PENDING", "01234567", "deploy to prod"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("a much longer proposal", 10); got != "a much ..." {
		t.Errorf("truncate long = %q", got)
	}
}
