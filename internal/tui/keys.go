package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// keyMap holds the bindings of the scenario view.
type keyMap struct {
	Quit      key.Binding
	NextPane  key.Binding
	PrevPane  key.Binding
	TasksPane key.Binding
	DAGPane   key.Binding
	Up        key.Binding
	Down      key.Binding
	Settings  key.Binding
	Cancel    key.Binding
}

var keys = keyMap{
	Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	NextPane:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next pane")),
	PrevPane:  key.NewBinding(key.WithKeys("shift+tab")),
	TasksPane: key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "tasks")),
	DAGPane:   key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "progress")),
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "previous task")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "next task")),
	Settings:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
	Cancel:    key.NewBinding(key.WithKeys("esc")),
}

// HelpView lists the bindings that carry help text.
func HelpView() string {
	var parts []string
	for _, b := range []key.Binding{keys.NextPane, keys.TasksPane, keys.DAGPane, keys.Down, keys.Up, keys.Settings, keys.Quit} {
		h := b.Help()
		parts = append(parts, h.Key+": "+h.Desc)
	}
	return StyleHelp.Render(strings.Join(parts, " · "))
}
