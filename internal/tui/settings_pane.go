package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/config"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
)

// SettingsPaneModel manages the runtime settings form overlay.
// Changes apply to the next run and are saved to a config file.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.MagenticConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error
	fields      *settingsFields
}

// settingsFields holds the form bindings. It lives behind a pointer so
// copies of the model keep writing to the values the form was built with.
type settingsFields struct {
	saveTarget     string
	conflictRule   string
	concurrency    string
	recipient      string
	location       string
	historyEnabled bool
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.MagenticConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		fields:      &settingsFields{},
	}
	m.loadFields()
	m.buildForm()
	return m
}

// loadFields copies the current config into the form bindings.
func (m *SettingsPaneModel) loadFields() {
	f := m.fields
	f.saveTarget = "project"
	f.conflictRule = m.config.Runtime.ConflictRule
	f.concurrency = strconv.Itoa(m.config.Runtime.Concurrency)
	f.recipient = m.config.Runtime.Recipient
	f.location = m.config.Runtime.Location
	f.historyEnabled = m.config.History.Enabled
}

func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Project (.magentic/config.json)", "project"),
					huh.NewOption("Global (~/.magentic/config.json)", "global"),
				).
				Value(&m.fields.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("conflictRule").
				Title("Conflict Rule").
				Options(
					huh.NewOption("Newest wins (Genie)", string(conflict.NewestPriority)),
					huh.NewOption("Fabric wins", string(conflict.FabricPriority)),
					huh.NewOption("Genie wins", string(conflict.GeniePriority)),
					huh.NewOption("Report only", string(conflict.ReportDifference)),
				).
				Value(&m.fields.conflictRule),

			huh.NewInput().
				Key("concurrency").
				Title("Concurrent Tasks").
				Value(&m.fields.concurrency).
				Validate(validateConcurrency).
				Placeholder("4"),
		).Title("Execution"),

		huh.NewGroup(
			huh.NewInput().
				Key("recipient").
				Title("Report Recipient").
				Value(&m.fields.recipient).
				Placeholder("ops@example.com"),

			huh.NewInput().
				Key("location").
				Title("Default Location").
				Value(&m.fields.location).
				Placeholder("New York City"),

			huh.NewConfirm().
				Key("historyEnabled").
				Title("Record Run History").
				Value(&m.fields.historyEnabled),
		).Title("Defaults"),
	)
}

func validateConcurrency(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return fmt.Errorf("enter a whole number of at least 1")
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if km, ok := msg.(tea.KeyMsg); ok && key.Matches(km, keys.Cancel) {
		// Cancel without saving
		m.visible = false
		m.saved = false
		return m, nil
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		targetPath := m.projectPath
		if m.fields.saveTarget == "global" {
			targetPath = m.globalPath
		}

		updated := m.applyForm()
		if err := config.Save(updated, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			*m.config = *updated
			m.saved = true
			m.err = nil
			m.visible = false
		}
	}

	return m, cmd
}

// applyForm returns a copy of the config with the form values applied.
// The live config is only replaced once the copy has been saved.
func (m SettingsPaneModel) applyForm() *config.MagenticConfig {
	f := m.fields
	updated := *m.config
	updated.Runtime.ConflictRule = f.conflictRule
	if n, err := strconv.Atoi(f.concurrency); err == nil {
		updated.Runtime.Concurrency = n
	}
	updated.Runtime.Recipient = f.recipient
	updated.Runtime.Location = f.location
	updated.History.Enabled = f.historyEnabled
	return &updated
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string
	if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	return lipgloss.JoinVertical(lipgloss.Left, title, style.Render(content))
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild form to reset state
	if v {
		m.loadFields()
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}

// Saved reports whether the last form submission was written.
func (m SettingsPaneModel) Saved() bool {
	return m.saved
}
