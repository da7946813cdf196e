package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Connected bool
	SessionID string
	Pending   int
	Approved  int
	Rejected  int
	Width     int
}

// New creates a status bar model.
func New(sessionID string) Model {
	return Model{SessionID: sessionID}
}

// SetCounts updates the per-status proposal counts.
func (m *Model) SetCounts(pending, approved, rejected int) {
	m.Pending = pending
	m.Approved = approved
	m.Rejected = rejected
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	if m.Connected {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Connected")
	} else {
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("○ Connecting...")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	line := func(label string, compact bool) string {
		return connStr + sep + theme.StyleHeader.Render(label+theme.ShortID(m.SessionID)) + sep + m.counts(compact)
	}

	// Shorten step by step, then truncate, so the bar stays one line.
	inner := width - 2
	content := line("session ", false)
	if lipgloss.Width(content) > inner {
		content = line("session ", true)
	}
	if lipgloss.Width(content) > inner {
		content = line("", true)
	}
	content = lipgloss.NewStyle().MaxWidth(inner).Render(content)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) counts(compact bool) string {
	format := func(s session.Status, n int) string {
		if compact {
			return fmt.Sprintf("%s%d", theme.StatusGlyph(s), n)
		}
		return fmt.Sprintf("%d %s", n, strings.ToLower(s.String()))
	}
	gap := "  "
	if compact {
		gap = " "
	}
	return strings.Join([]string{
		lipgloss.NewStyle().Foreground(theme.ColorPending).Render(format(session.Pending, m.Pending)),
		lipgloss.NewStyle().Foreground(theme.ColorApproved).Render(format(session.Approved, m.Approved)),
		lipgloss.NewStyle().Foreground(theme.ColorRejected).Render(format(session.Rejected, m.Rejected)),
	}, gap)
}
