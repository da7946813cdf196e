package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/theme"
)

// Display renders the proposer's output.
type Display struct {
	out io.Writer
}

func NewDisplay(out io.Writer) *Display {
	return &Display{out: out}
}

func (d *Display) SessionCreated(sessionID string) {
	body := sessionID + "\n" + theme.StyleDimmed.Render("Share this ID with Approvers")
	fmt.Fprintln(d.out, theme.Panel("Session Created", body, theme.ColorApproved))
}

func (d *Display) Connected(sessionID string) {
	fmt.Fprintln(d.out, style(theme.ColorApproved).Render(
		fmt.Sprintf("✓ Connected to session %s...", theme.ShortID(sessionID))))
}

func (d *Display) ProposalSent(p session.Proposal) {
	title := fmt.Sprintf("Proposal Sent (%s...)", theme.ShortID(p.ID))
	fmt.Fprintln(d.out, theme.Panel(title, p.Text, theme.ColorStream))
}

func (d *Display) Waiting() {
	d.Info("⏳ Waiting for decision...")
}

// Decision prints the outcome followed by a blank line.
func (d *Display) Decision(approved bool) {
	if approved {
		fmt.Fprintln(d.out, style(theme.ColorApproved).Bold(true).Render("✓ APPROVED"))
	} else {
		fmt.Fprintln(d.out, style(theme.ColorRejected).Bold(true).Render("✗ REJECTED"))
	}
	fmt.Fprintln(d.out)
}

func (d *Display) Error(msg string) {
	fmt.Fprintln(d.out, theme.StyleError.Render("Error:")+" "+msg)
}

func (d *Display) Info(msg string) {
	fmt.Fprintln(d.out, theme.StyleDimmed.Render(msg))
}

func (d *Display) Exit() {
	fmt.Fprintln(d.out)
	d.Info("Exiting...")
}

func style(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}
