package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/events"
)

// Task statuses as shown in the list.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// TaskState is the display state of one graph node.
type TaskState struct {
	TaskID       string
	Agent        string
	Description  string
	Dependencies []string
	Optional     bool
	Status       string
	Attempt      int
	Output       []string
	Duration     time.Duration
}

// TaskPaneModel shows the graph's tasks and the log of the selected one.
type TaskPaneModel struct {
	tasks       map[string]*TaskState // taskID -> state
	taskOrder   []string              // graph order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

const taskListWidth = 30

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	vp := viewport.New(0, 0)
	return TaskPaneModel{
		tasks:    make(map[string]*TaskState),
		viewport: vp,
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch {
		case key.Matches(msg, keys.Down):
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case key.Matches(msg, keys.Up):
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.GraphBuiltEvent:
		// A new graph replaces whatever the previous run showed
		m.tasks = make(map[string]*TaskState, len(msg.Tasks))
		m.taskOrder = nil
		m.selectedIdx = 0
		for _, info := range msg.Tasks {
			m.tasks[info.ID] = &TaskState{
				TaskID:       info.ID,
				Agent:        info.Agent,
				Description:  info.Description,
				Dependencies: info.Dependencies,
				Optional:     info.Optional,
				Status:       StatusPending,
			}
			m.taskOrder = append(m.taskOrder, info.ID)
		}
		m.updateViewportContent()

	case events.TaskStartedEvent:
		task := m.ensure(msg.ID, msg.Agent)
		task.Status = StatusRunning
		task.Attempt = msg.Attempt
		task.Output = append(task.Output, fmt.Sprintf("[%s] attempt %d started on %s", msg.Timestamp.Format("15:04:05"), msg.Attempt, msg.Agent))
		m.refresh(msg.ID)

	case events.TaskRetryEvent:
		task := m.ensure(msg.ID, msg.Agent)
		task.Output = append(task.Output, fmt.Sprintf("attempt %d failed, retrying: %v", msg.Attempt, msg.Err))
		m.refresh(msg.ID)

	case events.TaskCompletedEvent:
		task := m.ensure(msg.ID, "")
		task.Status = StatusCompleted
		task.Duration = msg.Duration
		task.Output = append(task.Output, msg.Result, fmt.Sprintf("\n[Completed in %v]", msg.Duration.Round(time.Millisecond)))
		m.refresh(msg.ID)

	case events.TaskFailedEvent:
		task := m.ensure(msg.ID, "")
		task.Status = StatusFailed
		task.Duration = msg.Duration
		task.Output = append(task.Output, fmt.Sprintf("\n[Failed: %v]", msg.Err))
		m.refresh(msg.ID)

	case events.TaskSkippedEvent:
		task := m.ensure(msg.ID, "")
		task.Status = StatusSkipped
		task.Output = append(task.Output, fmt.Sprintf("[Skipped: %s]", msg.Reason))
		m.refresh(msg.ID)

	case events.ConflictResolvedEvent:
		task := m.ensure(msg.ID, "")
		task.Output = append(task.Output, fmt.Sprintf("%d conflicts under %s, data quality %.2f", msg.ConflictCount, msg.Rule, msg.DataQualityScore))
		m.refresh(msg.ID)
	}

	return m, cmd
}

// ensure returns the state for taskID, adding it when the graph event was missed.
func (m *TaskPaneModel) ensure(taskID, agent string) *TaskState {
	task, ok := m.tasks[taskID]
	if !ok {
		task = &TaskState{TaskID: taskID, Agent: agent, Status: StatusPending}
		m.tasks[taskID] = task
		m.taskOrder = append(m.taskOrder, taskID)
	}
	if task.Agent == "" {
		task.Agent = agent
	}
	return task
}

func (m *TaskPaneModel) refresh(taskID string) {
	if m.SelectedTaskID() == taskID {
		m.updateViewportContent()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	viewportWidth := m.width - taskListWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderTaskList(taskListWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	return borderFor(m.focused).
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, taskID := range m.taskOrder {
		task := m.tasks[taskID]
		name := task.TaskID
		if task.Optional {
			name += "?"
		}
		if len(name) > width-4 {
			name = name[:width-7] + "..."
		}

		line := fmt.Sprintf("%s %s", StatusIcon(task.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator. Unknown statuses show as pending.
func StatusIcon(status string) string {
	if g, ok := statusGlyphs[status]; ok {
		return g.style.Render(g.glyph)
	}
	return StyleStatusPending.Render("○")
}

// SelectedTaskID returns the ID of the highlighted task.
func (m TaskPaneModel) SelectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// Task returns the display state of taskID.
func (m TaskPaneModel) Task(taskID string) (TaskState, bool) {
	task, ok := m.tasks[taskID]
	if !ok {
		return TaskState{}, false
	}
	return *task, true
}

func (m *TaskPaneModel) updateViewportContent() {
	task, ok := m.tasks[m.SelectedTaskID()]
	if !ok {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", task.TaskID, task.Agent)
	if task.Description != "" {
		b.WriteString(task.Description + "\n")
	}
	if len(task.Dependencies) > 0 {
		fmt.Fprintf(&b, "after: %s\n", strings.Join(task.Dependencies, ", "))
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(task.Output, "\n"))

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-taskListWidth-4, 10)
	m.viewport.Height = max(h-4, 5)
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
