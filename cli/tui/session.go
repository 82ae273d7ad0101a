package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/biotel-io/camsync/metrics"
	"github.com/biotel-io/camsync/recorder"
	"github.com/biotel-io/camsync/types"
)

// maxStatusLines is how many recent status messages the view keeps.
const maxStatusLines = 6

// pollInterval is how often the view refreshes counters.
const pollInterval = 100 * time.Millisecond

type tickMsg time.Time

type statusMsg string

// keyMap defines session view key bindings.
type keyMap struct {
	Start key.Binding
	Stop  key.Binding
	Quit  key.Binding
}

var keys = keyMap{
	Start: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "start recording"),
	),
	Stop: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "stop recording"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// SessionModel is the Bubble Tea model for a live capture session.
type SessionModel struct {
	controller *recorder.Controller
	collector  *metrics.Collector
	meta       *types.SessionMeta

	snapshot  metrics.Snapshot
	state     recorder.State
	statusLog []string
	started   time.Time
	elapsed   time.Duration

	width    int
	height   int
	quitting bool
}

// NewSessionModel creates a session model bound to a running controller.
func NewSessionModel(controller *recorder.Controller, collector *metrics.Collector, meta *types.SessionMeta) SessionModel {
	return SessionModel{
		controller: controller,
		collector:  collector,
		meta:       meta,
		state:      controller.State(),
		started:    time.Now(),
	}
}

// Init implements tea.Model.
func (m SessionModel) Init() tea.Cmd {
	return tea.Batch(tick(), waitStatus(m.controller.Status()))
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitStatus(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-ch)
	}
}

// Update implements tea.Model.
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.snapshot = m.collector.Snapshot()
		m.state = m.controller.State()
		m.elapsed = time.Since(m.started)
		return m, tick()

	case statusMsg:
		m.statusLog = append(m.statusLog, string(msg))
		if len(m.statusLog) > maxStatusLines {
			m.statusLog = m.statusLog[len(m.statusLog)-maxStatusLines:]
		}
		return m, waitStatus(m.controller.Status())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Start):
			m.controller.RequestStart()
			return m, nil
		case key.Matches(msg, keys.Stop):
			m.controller.RequestStop()
			return m, nil
		case key.Matches(msg, keys.Quit):
			m.controller.RequestStop()
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m SessionModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("camsync live session"))
	b.WriteString("\n")

	b.WriteString(LabelStyle.Render("Session:"))
	b.WriteString(ValueStyle.Render(m.meta.SessionID))
	b.WriteString("\n")
	if m.meta.Subject != "" {
		b.WriteString(LabelStyle.Render("Subject:"))
		b.WriteString(ValueStyle.Render(m.meta.Subject))
		b.WriteString("\n")
	}
	b.WriteString(LabelStyle.Render("State:"))
	b.WriteString(StateStyle(string(m.state)).Render(string(m.state)))
	b.WriteString("\n")
	b.WriteString(LabelStyle.Render("Elapsed:"))
	b.WriteString(ValueStyle.Render(m.elapsed.Round(time.Second).String()))
	if secs := m.elapsed.Seconds(); secs > 0 && m.snapshot.FramesCaptured > 0 {
		fps := float64(m.snapshot.FramesCaptured) / secs
		b.WriteString(ValueStyle.Render(fmt.Sprintf("  (%.1f fps)", fps)))
	}
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Frames", m.snapshot.FramesCaptured, highlightColor),
		m.renderStatBox("Missed", m.snapshot.FramesMissed, warningColor),
		m.renderStatBox("Overruns", m.snapshot.PacingOverruns, errorColor),
		m.renderStatBox("KiB", m.snapshot.BytesWritten/1024, successColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))

	if len(m.statusLog) > 0 {
		b.WriteString("\n\n")
		for _, line := range m.statusLog {
			b.WriteString(ValueStyle.Render("• " + line))
			b.WriteString("\n")
		}
	}

	help := HelpStyle.Render("r start · s stop · q quit")
	return b.String() + "\n" + help
}

func (m SessionModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunSessionTUI runs the live session view until the user quits.
func RunSessionTUI(controller *recorder.Controller, collector *metrics.Collector, meta *types.SessionMeta) error {
	model := NewSessionModel(controller, collector, meta)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
