// Package proposals renders a session's proposals, oldest first, with the
// pending one highlighted.
package proposals

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/theme"
)

type Model struct {
	items    []session.Proposal
	index    map[string]int
	Selected int
	Width    int
}

func New() Model {
	return Model{index: make(map[string]int)}
}

// Reset forgets every proposal. Used before a resubscribe replays history.
func (m *Model) Reset() {
	m.items = nil
	m.index = make(map[string]int)
	m.Selected = 0
}

// Apply records the proposal carried by ev, replacing an earlier snapshot
// of the same proposal in place.
func (m *Model) Apply(ev session.Event) {
	p := ev.Snapshot()
	if i, ok := m.index[p.ID]; ok {
		m.items[i] = p
		return
	}
	m.index[p.ID] = len(m.items)
	m.items = append(m.items, p)
	if p.Status == session.Pending {
		m.Selected = len(m.items) - 1
	}
}

func (m Model) Len() int {
	return len(m.items)
}

func (m Model) Items() []session.Proposal {
	return m.items
}

// Pending returns the proposal awaiting a decision, if any.
func (m Model) Pending() (session.Proposal, bool) {
	for i := len(m.items) - 1; i >= 0; i-- {
		if m.items[i].Status == session.Pending {
			return m.items[i], true
		}
	}
	return session.Proposal{}, false
}

func (m Model) Counts() (pending, approved, rejected int) {
	for _, p := range m.items {
		switch p.Status {
		case session.Pending:
			pending++
		case session.Approved:
			approved++
		case session.Rejected:
			rejected++
		}
	}
	return
}

func (m *Model) Up() {
	if len(m.items) > 0 {
		m.Selected = (m.Selected - 1 + len(m.items)) % len(m.items)
	}
}

func (m *Model) Down() {
	if len(m.items) > 0 {
		m.Selected = (m.Selected + 1) % len(m.items)
	}
}

// View renders at most height rows, keeping the selection visible.
func (m Model) View(height int) string {
	header := theme.StyleHeader.Render("=== PROPOSALS ================================================")
	if len(m.items) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  Waiting for proposals..."))
	}

	rows := height - 3
	if rows < 1 {
		rows = 1
	}
	start := 0
	if m.Selected >= rows {
		start = m.Selected - rows + 1
	}
	end := start + rows
	if end > len(m.items) {
		end = len(m.items)
	}

	lines := []string{header}
	for i := start; i < end; i++ {
		lines = append(lines, m.renderLine(i))
	}
	if sel := m.selected(); sel != nil {
		lines = append(lines, "", m.renderDetail(*sel))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) selected() *session.Proposal {
	if m.Selected < 0 || m.Selected >= len(m.items) {
		return nil
	}
	return &m.items[m.Selected]
}

func (m Model) renderLine(i int) string {
	p := m.items[i]
	prefix := "  "
	if i == m.Selected {
		prefix = "> "
	}

	maxText := m.Width - 32
	if maxText < 16 {
		maxText = 16
	}
	text := truncate(p.Text, maxText)
	if i == m.Selected {
		text = theme.StyleSelected.Render(text)
	}

	badge := lipgloss.NewStyle().Width(12).Render(theme.StatusBadge(p.Status))
	return fmt.Sprintf("%s%s %s  %s", prefix, badge, theme.StyleDimmed.Render(theme.ShortID(p.ID)), text)
}

func (m Model) renderDetail(p session.Proposal) string {
	lines := []string{
		theme.StyleDimmed.Render("id       ") + p.ID,
		theme.StyleDimmed.Render("created  ") + p.CreatedAt.Local().Format("15:04:05"),
	}
	if p.DecidedAt != nil {
		lines = append(lines, theme.StyleDimmed.Render("decided  ")+p.DecidedAt.Local().Format("15:04:05"))
	}
	lines = append(lines, "", p.Text)
	return theme.Panel(theme.StatusBadge(p.Status), strings.Join(lines, "\n"), theme.StatusColor(p.Status))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
