// ABOUTME: Bubbletea model for the engine telemetry TUI
// ABOUTME: Shows render load, peaks, counters and recent engine events
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/soundscape/internal/monitor"
)

const maxEvents = 6

// Model represents the TUI state
type Model struct {
	// Engine
	connected  bool
	engineName string
	engineID   string
	sampleRate int
	quantum    int
	maxSources int

	// Telemetry
	stats  monitor.StatsPayload
	events []string

	// Control
	gain    int
	muted   bool
	control *Control

	// Debug
	showDebug bool

	// Dimensions
	width  int
	height int
}

// HelloMsg identifies the engine being shown
type HelloMsg struct {
	Name  string
	Hello monitor.Hello
}

// StatsMsg carries a telemetry snapshot
type StatsMsg monitor.StatsPayload

// EventMsg carries one engine event
type EventMsg monitor.EventPayload

// DisconnectedMsg reports that the telemetry feed ended
type DisconnectedMsg struct{}

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
	case HelloMsg:
		m.applyHello(msg)
	case StatsMsg:
		m.stats = monitor.StatsPayload(msg)
	case EventMsg:
		m.addEvent(monitor.EventPayload(msg))
	case DisconnectedMsg:
		m.connected = false
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderMeters()
	s += m.renderStats()
	s += m.renderEvents()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()

	return s
}

// renderHeader renders engine identification
func (m Model) renderHeader() string {
	status := "Waiting for engine"
	if m.connected {
		status = fmt.Sprintf("%s @ %dHz, %d-frame quantum", truncate(m.engineName, 20), m.sampleRate, m.quantum)
	}

	return fmt.Sprintf(`┌─ Soundscape ─────────────────────────────────────────┐
│ Engine: %-45s │
├──────────────────────────────────────────────────────┤
`, truncate(status, 45))
}

// renderMeters renders load, peaks and master gain
func (m Model) renderMeters() string {
	muteIcon := ""
	if m.muted {
		muteIcon = " (muted)"
	}

	return fmt.Sprintf("│ Load:   [%s] %5.1f%%%-22s │\n"+
		"│ Peak L: [%s] %5.2f%-23s │\n"+
		"│ Peak R: [%s] %5.2f%-23s │\n"+
		"│ Gain:   [%s] %d%%%s%-*s │\n",
		renderBar(percent(m.stats.Load), 100, 20), m.stats.Load*100, "",
		renderBar(percent(float64(m.stats.PeakLeft)), 100, 20), m.stats.PeakLeft, "",
		renderBar(percent(float64(m.stats.PeakRight)), 100, 20), m.stats.PeakRight, "",
		renderBar(m.gain, 100, 20), m.gain, muteIcon, gainPad(m.gain, muteIcon), "")
}

// renderStats renders engine counters
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Sources: %3d/%-3d  Passes: %-12d            │
│ Underruns: %-6d  Invalid: %-6d  Decode: %-6d │
│ Dropped cmds: %-6d  Dropped events: %-6d      │
`, m.stats.ActiveSources, m.maxSources, m.stats.Passes,
		m.stats.Underruns, m.stats.InvalidHandles, m.stats.DecodeErrors,
		m.stats.DroppedCommands, m.stats.DroppedEvents)
}

// renderEvents renders the most recent engine events
func (m Model) renderEvents() string {
	s := "├──────────────────────────────────────────────────────┤\n"
	if len(m.events) == 0 {
		return s + "│ No events                                            │\n"
	}
	for _, ev := range m.events {
		s += fmt.Sprintf("│ %-52s │\n", truncate(ev, 52))
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ ↑/↓:Gain  m:Mute  d:Debug  q:Quit                    │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf(`│ DEBUG:                                               │
│   Engine ID: %-39s │
│   Frames: %-12d  Last pass: %-8dμs         │
│   Max pass: %-8dμs  Non-finite: %-10d      │
`, truncate(m.engineID, 39), m.stats.Frames, m.stats.LastPassMicros,
		m.stats.MaxPassMicros, m.stats.NonFinite)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.control != nil {
			select {
			case m.control.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		if m.gain < 100 {
			m.gain += 5
			if m.gain > 100 {
				m.gain = 100
			}
		}
		m.sendGain()
	case "down":
		if m.gain > 0 {
			m.gain -= 5
			if m.gain < 0 {
				m.gain = 0
			}
		}
		m.sendGain()
	case "m":
		m.muted = !m.muted
		m.sendGain()
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// sendGain forwards the effective gain without blocking the UI
func (m Model) sendGain() {
	if m.control == nil {
		return
	}
	gain := float32(m.gain) / 100
	if m.muted {
		gain = 0
	}
	select {
	case m.control.Gain <- GainChangeMsg{Gain: gain}:
	default:
	}
}

// applyHello updates the engine identification
func (m *Model) applyHello(msg HelloMsg) {
	m.connected = true
	m.engineName = msg.Name
	m.engineID = msg.Hello.EngineID
	m.sampleRate = msg.Hello.SampleRate
	m.quantum = msg.Hello.Quantum
	m.maxSources = msg.Hello.MaxSources
}

// addEvent appends to the event log, keeping the newest entries
func (m *Model) addEvent(ev monitor.EventPayload) {
	line := fmt.Sprintf("%s %s @%d", ev.Kind, ev.Handle, ev.Frames)
	if ev.Error != "" {
		line += ": " + ev.Error
	}
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = append(m.events[:0], m.events[len(m.events)-maxEvents:]...)
	}
}

// Utility functions
func renderBar(value, max, width int) string {
	if value < 0 {
		value = 0
	}
	if value > max {
		value = max
	}
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func percent(v float64) int {
	return int(v*100 + 0.5)
}

func gainPad(gain int, suffix string) int {
	n := 23 - len(fmt.Sprint(gain)) - len(suffix)
	if n < 0 {
		return 0
	}
	return n
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
