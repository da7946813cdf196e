// Package theme provides the Lip Gloss color palette and reusable styles
// shared by the approver TUI and the proposer CLI.
package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
)

// Proposal status colors.
var (
	ColorPending  = lipgloss.Color("#d97706")
	ColorApproved = lipgloss.Color("#16a34a")
	ColorRejected = lipgloss.Color("#dc2626")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// Event log colors.
var (
	ColorStream = lipgloss.Color("#2563eb")
	ColorAction = lipgloss.Color("#7c3aed")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorInfo    = lipgloss.Color("#3b82f6")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StatusColor returns the Lip Gloss color for a proposal status.
func StatusColor(s session.Status) lipgloss.Color {
	switch s {
	case session.Pending:
		return ColorPending
	case session.Approved:
		return ColorApproved
	case session.Rejected:
		return ColorRejected
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph representing a proposal status.
func StatusGlyph(s session.Status) string {
	switch s {
	case session.Pending:
		return "◌"
	case session.Approved:
		return "✓"
	case session.Rejected:
		return "✗"
	default:
		return "·"
	}
}

// StatusBadge renders the glyph and status name in the status color.
func StatusBadge(s session.Status) string {
	return lipgloss.NewStyle().Foreground(StatusColor(s)).Bold(true).Render(StatusGlyph(s) + " " + s.String())
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorDanger)
)

// Panel frames body in a rounded border with a title line, in color.
func Panel(title, body string, color lipgloss.Color) string {
	header := lipgloss.NewStyle().Bold(true).Foreground(color).Render(title)
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body))
}

// ShortID truncates an ID for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
