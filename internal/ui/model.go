// ABOUTME: Bubbletea model for the voice session TUI
// ABOUTME: Defines connection, level, transcript and playback state and its update logic
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// maxTranscriptLines is how much conversation history stays on screen
const maxTranscriptLines = 8

// boxWidth is the inner width of the frame
const boxWidth = 54

// Line is one transcript entry
type Line struct {
	User bool
	Text string
}

// Model represents the TUI state
type Model struct {
	// Session
	state     string
	persona   string
	voice     string
	transport string
	lastError string

	// Audio
	level  float64
	volume int
	muted  bool

	// Conversation
	transcript []Line
	lineOpen   bool // the last line may still grow
	interrupts int
	turns      int

	// Stats
	scheduled int64
	dropped   int64

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int

	controls *Controls
}

var (
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	stateStyle = map[string]lipgloss.Style{
		"connected":  lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		"connecting": lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		"failed":     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case LevelMsg:
		m.level = float64(msg)
	case TranscriptMsg:
		m.appendTranscript(Line(msg))
	case InterruptedMsg:
		m.interrupts++
		m.appendTranscript(Line{Text: "(interrupted)"})
		m.lineOpen = false
	case TurnCompleteMsg:
		m.turns++
		m.lineOpen = false
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderLevels())
	b.WriteString(m.renderTranscript())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString(m.renderHelp())
	return b.String()
}

// row pads plain text to the frame width
func row(text string) string {
	return fmt.Sprintf("│ %-*s │\n", boxWidth-2, truncate(text, boxWidth-2))
}

// styledRow pads text then styles it so escape codes do not break alignment
func styledRow(style lipgloss.Style, text string) string {
	padded := fmt.Sprintf("%-*s", boxWidth-2, truncate(text, boxWidth-2))
	return "│ " + style.Render(padded) + " │\n"
}

// renderHeader renders session status
func (m Model) renderHeader() string {
	var b strings.Builder
	b.WriteString("┌─ Resonate Voice ─────────────────────────────────────┐\n")

	style, ok := stateStyle[m.state]
	if !ok {
		style = lipgloss.NewStyle()
	}
	b.WriteString(styledRow(style, "Status:  "+m.state))
	b.WriteString(row("Persona: " + m.persona + voiceSuffix(m.voice)))
	b.WriteString(row("Via:     " + m.transport))
	if m.lastError != "" {
		b.WriteString(styledRow(errorStyle, "Error:   "+m.lastError))
	}
	b.WriteString("├──────────────────────────────────────────────────────┤\n")
	return b.String()
}

func voiceSuffix(voice string) string {
	if voice == "" {
		return ""
	}
	return " (" + voice + ")"
}

// renderLevels renders the audio level meter and volume
func (m Model) renderLevels() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " muted"
	}

	level := int(m.level * 100)
	return row(fmt.Sprintf("Level:  [%s]", renderBar(level, 100, 20))) +
		row(fmt.Sprintf("Volume: [%s] %d%%%s", renderBar(m.volume, 100, 10), m.volume, muteIcon)) +
		"├──────────────────────────────────────────────────────┤\n"
}

// renderTranscript renders the most recent conversation lines
func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return row("Say something...") + row("")
	}

	var b strings.Builder
	for _, line := range m.transcript {
		if line.User {
			b.WriteString(styledRow(userStyle, "You:   "+line.Text))
		} else {
			b.WriteString(styledRow(agentStyle, "Agent: "+line.Text))
		}
	}
	b.WriteString(row(""))
	return b.String()
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return row("space:Connect/Hangup  ↑/↓:Volume  m:Mute  d:Debug  q:Quit") +
		"└──────────────────────────────────────────────────────┘\n"
}

// renderDebug renders session counters
func (m Model) renderDebug() string {
	return row("DEBUG:") +
		row(fmt.Sprintf("  Turns: %d  Interruptions: %d", m.turns, m.interrupts)) +
		row(fmt.Sprintf("  Chunks scheduled: %d  Dropped: %d", m.scheduled, m.dropped))
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case " ":
		if m.controls != nil {
			select {
			case m.controls.Toggle <- ToggleMsg{}:
			default:
			}
		}
	case "up":
		m.volume = min(m.volume+5, 100)
		m.sendVolume()
	case "down":
		m.volume = max(m.volume-5, 0)
		m.sendVolume()
	case "m":
		m.muted = !m.muted
		m.sendVolume()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

func (m Model) sendVolume() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Changes <- VolumeChangeMsg{Volume: m.volume, Muted: m.muted}:
	default:
	}
}

// appendTranscript adds a line, merging fragments from the same speaker within a turn
func (m *Model) appendTranscript(line Line) {
	if line.Text == "" {
		return
	}
	if n := len(m.transcript); m.lineOpen && n > 0 && m.transcript[n-1].User == line.User {
		m.transcript[n-1].Text = strings.TrimSpace(m.transcript[n-1].Text + " " + line.Text)
		return
	}
	m.transcript = append(m.transcript, line)
	m.lineOpen = true
	if len(m.transcript) > maxTranscriptLines {
		m.transcript = m.transcript[len(m.transcript)-maxTranscriptLines:]
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
		if msg.State == "connecting" {
			m.lastError = ""
		}
		if msg.State != "connected" {
			m.level = 0
		}
	}
	if msg.Persona != "" {
		m.persona = msg.Persona
		m.voice = msg.Voice
	}
	if msg.Transport != "" {
		m.transport = msg.Transport
	}
	if msg.Error != "" {
		m.lastError = msg.Error
	}
	if msg.Scheduled != 0 || msg.Dropped != 0 {
		m.scheduled = msg.Scheduled
		m.dropped = msg.Dropped
	}
}

// StatusMsg updates TUI state. Zero fields are left unchanged.
type StatusMsg struct {
	State     string
	Persona   string
	Voice     string
	Transport string
	Error     string
	Scheduled int64
	Dropped   int64
}

// LevelMsg carries the latest audio level in [0, 1]
type LevelMsg float64

// TranscriptMsg carries one transcript fragment
type TranscriptMsg Line

// InterruptedMsg marks an agent turn cut short
type InterruptedMsg struct{}

// TurnCompleteMsg marks the end of an agent turn
type TurnCompleteMsg struct{}

// Utility functions
func renderBar(value, limit, width int) string {
	value = min(max(value, 0), limit)
	filled := (value * width) / limit
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len([]rune(s)) <= length {
		return s
	}
	return string([]rune(s)[:length-3]) + "..."
}
