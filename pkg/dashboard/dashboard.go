package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/slaclab/acclive/pkg/monitor"
	"github.com/slaclab/acclive/pkg/wire"
)

// DefaultInterval is the polling period.
const DefaultInterval = time.Second

const (
	minPlotWidth  = 20
	plotHeight    = 14
	defaultWidth  = 100
	tableLabelPad = 2
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	graphStyle = lipgloss.NewStyle().Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	tableStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// Poller reads the model PVs.
type Poller interface {
	Poll(ctx context.Context) (*monitor.Snapshot, error)
}

// Config configures the dashboard.
type Config struct {
	// Title is shown above the plot.
	Title string

	// Interval between polls (default DefaultInterval).
	Interval time.Duration

	// Inputs are the variable names shown in the value table.
	Inputs []string
}

type tickMsg time.Time

type snapshotMsg struct {
	snap *monitor.Snapshot
	err  error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	ctx    context.Context
	poller Poller
	config Config

	snap   *monitor.Snapshot
	err    error
	polls  int
	paused bool
	width  int
}

// New creates a dashboard model. ctx bounds every poll.
func New(ctx context.Context, poller Poller, config Config) Model {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Title == "" {
		config.Title = "acclive model"
	}
	return Model{ctx: ctx, poller: poller, config: config, width: defaultWidth}
}

// Init starts the first poll.
func (m Model) Init() tea.Cmd {
	return m.poll()
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, m.config.Interval)
		defer cancel()
		snap, err := m.poller.Poll(ctx)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.config.Interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles keys, window size, ticks and poll results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "p":
			m.paused = !m.paused
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case snapshotMsg:
		m.polls++
		m.err = msg.err
		if msg.snap != nil {
			m.snap = msg.snap
		}
		return m, m.tick()
	case tickMsg:
		if m.paused {
			return m, m.tick()
		}
		return m, m.poll()
	}
	return m, nil
}

// View renders the plot, the value table and a status line.
func (m Model) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(m.config.Title) + "\n")

	if m.snap == nil {
		s.WriteString(labelStyle.Render("waiting for data...") + "\n")
	} else if pos, ba, bb, ok := m.snap.Twiss(); ok {
		width := max(m.width-12, minPlotWidth)
		s.WriteString(graphStyle.Render(plotTwiss(pos, ba, bb, width, plotHeight)) + "\n")
	} else {
		s.WriteString(errorStyle.Render("no twiss data") + "\n")
	}

	if len(m.config.Inputs) > 0 {
		s.WriteString(tableStyle.Render(m.table()) + "\n")
	}

	s.WriteString(m.status())
	s.WriteString(helpStyle.Render("q: quit  p: pause") + "\n")
	return s.String()
}

func (m Model) table() string {
	labelWidth := 0
	for _, name := range m.config.Inputs {
		labelWidth = max(labelWidth, lipgloss.Width(name))
	}
	label := labelStyle.Width(labelWidth + tableLabelPad)

	rows := make([]string, 0, len(m.config.Inputs))
	for _, name := range m.config.Inputs {
		rows = append(rows, label.Render(name)+valueStyle.Render(m.value(name)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) value(name string) string {
	if m.snap == nil {
		return "-"
	}
	v, ok := m.snap.Values[name]
	if !ok {
		return "-"
	}
	if f, ok := wire.ToFloat64(v); ok {
		return fmt.Sprintf("%.6g", f)
	}
	return wire.FormatValue(v)
}

func (m Model) status() string {
	var parts []string
	if m.snap != nil {
		parts = append(parts, "updated "+m.snap.Time.Format(time.TimeOnly))
		if n := len(m.snap.Errors); n > 0 {
			parts = append(parts, errorStyle.Render(fmt.Sprintf("%d pv(s) unavailable", n)))
		}
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render(m.err.Error()))
	}
	if m.paused {
		parts = append(parts, "paused")
	}
	return labelStyle.Render(strings.Join(parts, "  ")) + "\n"
}

// Run shows the dashboard until the user quits or ctx ends.
func Run(ctx context.Context, poller Poller, config Config, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	_, err := tea.NewProgram(New(ctx, poller, config), opts...).Run()
	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
