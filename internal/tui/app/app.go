// Package app is the approver's terminal UI: it follows one session's
// proposal stream and lets the approver decide the pending proposal.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kevinaud/rpc-streaming-prototype/internal/client"
	"github.com/kevinaud/rpc-streaming-prototype/internal/session"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/theme"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/views/debug"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/views/proposals"
	"github.com/kevinaud/rpc-streaming-prototype/internal/tui/views/status"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Stream is an open subscription.
type Stream interface {
	Recv() (session.Event, error)
	Close() error
}

// API is the part of the server the approver talks to.
type API interface {
	Subscribe(ctx context.Context, sessionID string) (Stream, error)
	SubmitDecision(ctx context.Context, sessionID, proposalID string, approved bool) (session.Proposal, error)
}

// FromClient adapts a client.Client to API.
func FromClient(c *client.Client) API {
	return clientAPI{c}
}

type clientAPI struct{ c *client.Client }

func (a clientAPI) Subscribe(ctx context.Context, sessionID string) (Stream, error) {
	st, err := a.c.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (a clientAPI) SubmitDecision(ctx context.Context, sessionID, proposalID string, approved bool) (session.Proposal, error) {
	return a.c.SubmitDecision(ctx, sessionID, proposalID, approved)
}

// --- Bubble Tea messages ---

type connectedMsg struct{ stream Stream }

type eventMsg struct {
	stream Stream
	ev     session.Event
}

type streamErrMsg struct {
	stream Stream
	err    error
}

type reconnectMsg struct{}

type decisionMsg struct {
	approved bool
	proposal session.Proposal
	err      error
}

// Model is the root Bubble Tea model.
type Model struct {
	api       API
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc

	keys   KeyMap
	width  int
	height int

	statusBar status.Model
	list      proposals.Model
	log       debug.Model
	showLog   bool

	stream     Stream
	connected  bool
	retryDelay time.Duration
	fatal      error
}

// New creates the root model for sessionID.
func New(api API, sessionID string) Model {
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		api:        api,
		sessionID:  sessionID,
		ctx:        ctx,
		cancel:     cancel,
		keys:       DefaultKeyMap(),
		statusBar:  status.New(sessionID),
		list:       proposals.New(),
		log:        debug.New(),
		retryDelay: reconnectBaseDelay,
	}
}

// Init opens the stream.
func (m Model) Init() tea.Cmd {
	return m.connect()
}

func (m Model) connect() tea.Cmd {
	api, ctx, id := m.api, m.ctx, m.sessionID
	return func() tea.Msg {
		st, err := api.Subscribe(ctx, id)
		if err != nil {
			return streamErrMsg{err: err}
		}
		return connectedMsg{stream: st}
	}
}

func recv(st Stream) tea.Cmd {
	return func() tea.Msg {
		ev, err := st.Recv()
		if err != nil {
			return streamErrMsg{stream: st, err: err}
		}
		return eventMsg{stream: st, ev: ev}
	}
}

func (m Model) decide(proposalID string, approved bool) tea.Cmd {
	api, ctx, id := m.api, m.ctx, m.sessionID
	return func() tea.Msg {
		p, err := api.SubmitDecision(ctx, id, proposalID, approved)
		return decisionMsg{approved: approved, proposal: p, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.list.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case connectedMsg:
		m.stream = msg.stream
		m.connected = true
		m.statusBar.Connected = true
		m.retryDelay = reconnectBaseDelay
		// History is replayed on every subscribe.
		m.list.Reset()
		m.updateCounts()
		m.log.Connected(m.sessionID)
		return m, recv(msg.stream)

	case eventMsg:
		if msg.stream != m.stream {
			return m, nil
		}
		m.list.Apply(msg.ev)
		m.log.Event(msg.ev)
		m.updateCounts()
		return m, recv(msg.stream)

	case streamErrMsg:
		if msg.stream != nil && msg.stream != m.stream {
			return m, nil
		}
		return m.handleStreamError(msg.err)

	case reconnectMsg:
		return m, m.connect()

	case decisionMsg:
		if msg.err != nil {
			m.log.Error(fmt.Errorf("decision failed: %w", msg.err))
			return m, nil
		}
		m.log.Decision(msg.proposal)
		return m, nil
	}

	return m, nil
}

func (m Model) handleStreamError(err error) (tea.Model, tea.Cmd) {
	if m.stream != nil {
		m.stream.Close()
		m.stream = nil
	}
	m.connected = false
	m.statusBar.Connected = false
	if m.ctx.Err() != nil {
		return m, nil
	}

	m.log.Error(err)
	if errors.Is(err, session.ErrNotFound) {
		m.fatal = err
		return m, nil
	}

	delay := m.retryDelay
	m.retryDelay = min(m.retryDelay*2, reconnectMaxDelay)
	return m, tea.Tick(delay, func(time.Time) tea.Msg { return reconnectMsg{} })
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.cancel()
		if m.stream != nil {
			m.stream.Close()
		}
		return m, tea.Quit
	}

	if m.showLog {
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Log):
			m.showLog = false
		case key.Matches(msg, m.keys.PageUp):
			m.log.ScrollUp(5)
		case key.Matches(msg, m.keys.PageDown):
			m.log.ScrollDown(5)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.list.Down()
	case key.Matches(msg, m.keys.Up):
		m.list.Up()
	case key.Matches(msg, m.keys.Log):
		m.showLog = true
	case key.Matches(msg, m.keys.Approve), key.Matches(msg, m.keys.Reject):
		approved := key.Matches(msg, m.keys.Approve)
		p, ok := m.list.Pending()
		if !ok {
			m.log.Notice("no pending proposal")
			return m, nil
		}
		return m, m.decide(p.ID, approved)
	}
	return m, nil
}

func (m *Model) updateCounts() {
	m.statusBar.SetCounts(m.list.Counts())
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.fatal != nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.statusBar.View(),
			theme.StyleError.Render("  "+m.fatal.Error()),
			theme.StyleDimmed.Render("  q:quit"),
		)
	}

	body := m.list.View(m.height - 5)
	if m.showLog {
		body = m.log.View(m.width, m.height-4)
	} else if !m.connected {
		body = m.renderDisconnected()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render("  j/k:navigate  a:approve  r:reject  l:log  q:quit"),
	)
}

func (m Model) renderDisconnected() string {
	msg := lipgloss.JoinVertical(lipgloss.Center,
		theme.StyleError.Render("DISCONNECTED"),
		theme.StyleDimmed.Render("Reconnecting..."),
	)
	return lipgloss.Place(m.width, max(m.height-4, 3), lipgloss.Center, lipgloss.Center, msg)
}
