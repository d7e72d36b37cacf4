// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it uses to steer the engine
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Control carries user input from the TUI back to the engine owner
type Control struct {
	Gain chan GainChangeMsg
	Quit chan QuitMsg
}

// GainChangeMsg requests a new master gain
type GainChangeMsg struct {
	Gain float32
}

// QuitMsg signals that the user left the TUI
type QuitMsg struct{}

// NewControl creates a control handler
func NewControl() *Control {
	return &Control{
		Gain: make(chan GainChangeMsg, 10),
		Quit: make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model. ctrl may be nil for a read-only view.
func NewModel(ctrl *Control) Model {
	return Model{
		gain:    100,
		control: ctrl,
	}
}

// Run creates the TUI program; the caller runs it and feeds it messages
// with Program.Send
func Run(ctrl *Control) *tea.Program {
	return tea.NewProgram(NewModel(ctrl), tea.WithAltScreen())
}
