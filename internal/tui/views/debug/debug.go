// Package debug provides the approver's event log overlay: stream events,
// connection changes, the approver's own decisions and errors.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/theme"
)

const maxEntries = 200

// Kind classifies a log entry.
type Kind string

const (
	KindConnection Kind = "conn"
	KindCreated    Kind = Kind(session.EventProposalCreated)
	KindUpdated    Kind = Kind(session.EventProposalUpdated)
	KindDecision   Kind = "decision"
	KindNotice     Kind = "notice"
	KindError      Kind = "error"
)

// Label is the short column text for k.
func (k Kind) Label() string {
	switch k {
	case KindCreated:
		return "new"
	case KindUpdated:
		return "upd"
	case KindDecision:
		return "you"
	case KindError:
		return "err"
	case KindNotice:
		return "note"
	default:
		return string(k)
	}
}

func (k Kind) color() lipgloss.Color {
	switch k {
	case KindCreated, KindUpdated, KindConnection:
		return theme.ColorStream
	case KindDecision:
		return theme.ColorAction
	case KindError:
		return theme.ColorDanger
	default:
		return theme.ColorDimmed
	}
}

// Entry is one log line. Proposal is set for event and decision entries.
type Entry struct {
	Time     time.Time
	Kind     Kind
	Proposal *session.Proposal
	Message  string
}

// Model holds the log and its scroll position, counted from the newest entry.
type Model struct {
	Entries []Entry
	Offset  int
	now     func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

func (m *Model) add(e Entry) {
	if m.now == nil {
		m.now = time.Now
	}
	e.Time = m.now()
	m.Entries = append(m.Entries, e)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Connected records a (re)subscription to sessionID.
func (m *Model) Connected(sessionID string) {
	m.add(Entry{Kind: KindConnection, Message: "subscribed to " + sessionID})
}

// Event records a stream event under its event type.
func (m *Model) Event(ev session.Event) {
	p := ev.Snapshot()
	m.add(Entry{Kind: Kind(ev.Type()), Proposal: &p, Message: fmt.Sprintf("%q", p.Text)})
}

// Decision records a decision this approver submitted successfully.
func (m *Model) Decision(p session.Proposal) {
	m.add(Entry{Kind: KindDecision, Proposal: &p, Message: strings.ToLower(p.Status.String())})
}

func (m *Model) Notice(msg string) {
	m.add(Entry{Kind: KindNotice, Message: msg})
}

func (m *Model) Error(err error) {
	m.add(Entry{Kind: KindError, Message: err.Error()})
}

// Last returns the newest entry.
func (m Model) Last() (Entry, bool) {
	if len(m.Entries) == 0 {
		return Entry{}, false
	}
	return m.Entries[len(m.Entries)-1], true
}

func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the log as a bordered overlay of the given size.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("pgup/pgdn:scroll  esc:close  %d entries", len(m.Entries)))
	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(m.Entries) == 0 {
		empty := theme.StyleDimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", empty, "", help))
	}

	end := max(len(m.Entries)-m.Offset, 0)
	start := max(end-rows, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		lines = append(lines, renderEntry(e, innerW-4))
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func renderEntry(e Entry, width int) string {
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(e.Kind.color()).Width(5).Render(e.Kind.Label())

	msg := e.Message
	if e.Proposal != nil {
		glyph := lipgloss.NewStyle().Foreground(theme.StatusColor(e.Proposal.Status)).Render(theme.StatusGlyph(e.Proposal.Status))
		msg = fmt.Sprintf("%s %s %s", glyph, theme.ShortID(e.Proposal.ID), msg)
	}
	line := fmt.Sprintf("%s %s %s", ts, kind, msg)
	return lipgloss.NewStyle().MaxWidth(width).Render(line)
}
