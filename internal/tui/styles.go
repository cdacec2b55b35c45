package tui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorAccent = lipgloss.Color("62")
	colorMuted  = lipgloss.Color("240")
)

var (
	StyleFocusedBorder   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorAccent)
	StyleUnfocusedBorder = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorMuted)

	StyleTitle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	StyleSelected = lipgloss.NewStyle().Background(colorAccent).Foreground(lipgloss.Color("0"))
)

// Task status styles, one per status shown in the task list.
var (
	StyleStatusRunning  = lipgloss.NewStyle().Foreground(lipgloss.Color("yellow")).Bold(true)
	StyleStatusComplete = lipgloss.NewStyle().Foreground(lipgloss.Color("green")).Bold(true)
	StyleStatusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("red")).Bold(true)
	StyleStatusSkipped  = lipgloss.NewStyle().Foreground(lipgloss.Color("magenta"))
	StyleStatusPending  = lipgloss.NewStyle().Foreground(colorMuted)
)

// statusGlyphs maps a task status to its list marker.
var statusGlyphs = map[string]struct {
	glyph string
	style lipgloss.Style
}{
	StatusRunning:   {"●", StyleStatusRunning},
	StatusCompleted: {"✓", StyleStatusComplete},
	StatusFailed:    {"✗", StyleStatusFailed},
	StatusSkipped:   {"↷", StyleStatusSkipped},
}

// borderFor returns the pane border for the focus state.
func borderFor(focused bool) lipgloss.Style {
	if focused {
		return StyleFocusedBorder
	}
	return StyleUnfocusedBorder
}
