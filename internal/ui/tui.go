// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it uses to drive the session
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// VolumeChangeMsg is a volume or mute change made in the TUI
type VolumeChangeMsg struct {
	Volume int
	Muted  bool
}

// ToggleMsg asks to connect when idle or hang up when connected
type ToggleMsg struct{}

// QuitMsg asks the application to exit
type QuitMsg struct{}

// Controls holds channels carrying user actions out of the TUI
type Controls struct {
	Changes chan VolumeChangeMsg
	Toggle  chan ToggleMsg
	Quit    chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Changes: make(chan VolumeChangeMsg, 10),
		Toggle:  make(chan ToggleMsg, 1),
		Quit:    make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls, volume int) Model {
	return Model{
		state:    "idle",
		volume:   volume,
		controls: controls,
	}
}

// Run creates the TUI program. The caller runs it.
func Run(controls *Controls, volume int) *tea.Program {
	return tea.NewProgram(NewModel(controls, volume), tea.WithAltScreen())
}
