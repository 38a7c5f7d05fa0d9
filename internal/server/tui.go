// ABOUTME: Server TUI for displaying connected voice clients and turn stats
// ABOUTME: Real-time gateway status display using bubbletea
package server

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ServerTUI manages the server TUI
type ServerTUI struct {
	program  *tea.Program
	updates  chan ServerStatus
	quitChan chan struct{}
}

// ServerStatus holds server state for TUI
type ServerStatus struct {
	Name     string
	Port     int
	Reply    string
	Turns    int
	BargeIns int
	Clients  []ClientInfo
	Activity []string
}

// ClientInfo holds client information for display
type ClientInfo struct {
	Name     string
	ID       string
	Persona  string
	Codec    string
	State    string
	Turns    int
	BargeIns int
}

// tuiModel is the bubbletea model for server TUI
type tuiModel struct {
	status    ServerStatus
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg ServerStatus

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	clientHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("220"))

	stateStyles = map[string]lipgloss.Style{
		StateListening: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		StateSpeaking:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StateReplying:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
	}
)

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = ServerStatus(msg)
		return m, nil
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down gateway...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Resonate Voice Gateway"))
	b.WriteString("\n\n")

	field := func(name, value string) {
		b.WriteString(headerStyle.Render(name + ": "))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	field("Server", m.status.Name)
	field("Port", fmt.Sprintf("%d", m.status.Port))
	field("Uptime", time.Since(m.startTime).Round(time.Second).String())
	field("Replies", m.status.Reply)
	field("Turns", fmt.Sprintf("%d (%d barge-ins)", m.status.Turns, m.status.BargeIns))
	b.WriteString("\n")

	b.WriteString(clientHeaderStyle.Render(fmt.Sprintf("Connected Clients (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No clients connected"))
		b.WriteString("\n")
	}
	for _, client := range m.status.Clients {
		style, ok := stateStyles[client.State]
		if !ok {
			style = valueStyle
		}
		b.WriteString(fmt.Sprintf("  • %s ", client.Name))
		b.WriteString(style.Render(client.State))
		b.WriteString(valueStyle.Render(fmt.Sprintf(" (%s, %s, %d turns, %d barge-ins)",
			client.Persona, client.Codec, client.Turns, client.BargeIns)))
		b.WriteString("\n")
	}

	if len(m.status.Activity) > 0 {
		b.WriteString("\n")
		b.WriteString(clientHeaderStyle.Render("Recent Activity"))
		b.WriteString("\n\n")
		for _, line := range m.status.Activity {
			b.WriteString(valueStyle.Render("  " + line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewServerTUI creates a new server TUI
func NewServerTUI() *ServerTUI {
	return &ServerTUI{
		updates:  make(chan ServerStatus, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the TUI until it quits
func (t *ServerTUI) Start(initial ServerStatus) error {
	m := tuiModel{
		status:    initial,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update to the TUI
func (t *ServerTUI) Update(status ServerStatus) {
	select {
	case t.updates <- status:
	default:
		// Don't block if channel is full
	}
}

// Stop stops the TUI
func (t *ServerTUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan returns the channel that signals when user wants to quit
func (t *ServerTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
