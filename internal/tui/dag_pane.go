package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/events"
)

// DAGPaneModel shows scenario and graph progress.
type DAGPaneModel struct {
	runID      string
	scenario   string
	graphID    string
	total      int
	completed  int
	inProgress int
	failed     int
	skipped    int
	pending    int
	finished   bool
	success    bool
	runErr     string
	duration   time.Duration
	width      int
	height     int
	focused    bool
}

// NewDAGPaneModel creates a new DAG pane model.
func NewDAGPaneModel() DAGPaneModel {
	return DAGPaneModel{}
}

// Update handles messages for the DAG pane.
func (m DAGPaneModel) Update(msg tea.Msg) (DAGPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.ScenarioDetectedEvent:
		// A new run resets the counters
		m = DAGPaneModel{width: m.width, height: m.height, focused: m.focused}
		m.runID = msg.RunID
		m.scenario = msg.Scenario

	case events.GraphBuiltEvent:
		m.graphID = msg.GraphID
		m.total = len(msg.Tasks)
		m.pending = len(msg.Tasks)

	case events.GraphProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.inProgress = msg.InProgress
		m.failed = msg.Failed
		m.skipped = msg.Skipped
		m.pending = msg.Pending

	case events.ScenarioFinishedEvent:
		m.finished = true
		m.success = msg.Success
		m.runErr = msg.Err
		m.duration = msg.Duration
	}

	return m, nil
}

// Finished reports whether the scenario has ended.
func (m DAGPaneModel) Finished() bool {
	return m.finished
}

// View renders the DAG pane.
func (m DAGPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Scenario Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	if m.scenario != "" {
		fmt.Fprintf(&b, "Scenario:  %s\n", m.scenario)
	}
	if m.graphID != "" {
		fmt.Fprintf(&b, "Graph:     %s\n", m.graphID)
	}

	fmt.Fprintf(&b, "Total:     %d\n", m.total)
	fmt.Fprintf(&b, "Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed)))
	fmt.Fprintf(&b, "Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.inProgress)))
	fmt.Fprintf(&b, "Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed)))
	fmt.Fprintf(&b, "Skipped:   %s\n", StyleStatusSkipped.Render(fmt.Sprintf("%d", m.skipped)))
	fmt.Fprintf(&b, "Pending:   %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending)))
	b.WriteString("\n")

	if m.total > 0 {
		b.WriteString(m.progressBar(min(m.width-4, 40)))
		b.WriteString("\n")
	}

	if m.finished {
		b.WriteString("\n")
		if m.success {
			b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Succeeded in %v", m.duration.Round(time.Millisecond))))
		} else {
			b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Failed: %s", m.runErr)))
		}
		b.WriteString("\n")
	}

	return borderFor(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

func (m DAGPaneModel) progressBar(width int) string {
	completedWidth := (m.completed * width) / m.total
	failedWidth := (m.failed * width) / m.total
	skippedWidth := (m.skipped * width) / m.total
	runningWidth := (m.inProgress * width) / m.total
	pendingWidth := width - completedWidth - failedWidth - skippedWidth - runningWidth

	bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
	bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
	bar += StyleStatusSkipped.Render(strings.Repeat("~", max(0, skippedWidth)))
	bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
	bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

	done := m.completed + m.failed + m.skipped
	return fmt.Sprintf("[%s]  %d/%d", bar, done, m.total)
}

// SetSize updates the pane dimensions.
func (m *DAGPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *DAGPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
