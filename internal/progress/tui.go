package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshInterval = 100 * time.Millisecond

var (
	currentStyle = lipgloss.NewStyle().Bold(true)
	statsStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle    = lipgloss.NewStyle().Faint(true)
)

type tickMsg time.Time

type doneMsg struct{}

// Model renders the current URL on the first line and the counters on the
// last line of the terminal.
type Model struct {
	src       Source
	snap      Snapshot
	spinner   spinner.Model
	width     int
	height    int
	interrupt func()
	quitting  bool
}

func NewModel(src Source, interrupt func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return Model{
		src:       src,
		snap:      src.Snapshot(),
		spinner:   s,
		interrupt: interrupt,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.interrupt != nil {
				m.interrupt()
			}
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.snap = m.src.Snapshot()
		return m, tick()
	case doneMsg:
		m.snap = m.src.Snapshot()
		m.quitting = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	current := "Current URL: " + m.snap.Current
	if m.width > 4 && len(current) > m.width-1 {
		current = current[:m.width-4] + "..."
	}
	stats := fmt.Sprintf("Visited: %d | Queue: %d", m.snap.Visited, m.snap.Queued)
	if m.snap.Failed > 0 {
		stats += fmt.Sprintf(" | Failed: %d", m.snap.Failed)
	}

	top := m.spinner.View() + " " + currentStyle.Render(current)
	bottom := statsStyle.Render(stats)
	if m.quitting {
		return top + "\n" + bottom + "\n"
	}
	bottom += "  " + hintStyle.Render("ctrl+c to stop and save progress")

	gap := 1
	if m.height > 2 {
		gap = m.height - 2
	}
	lines := top
	for i := 0; i < gap; i++ {
		lines += "\n"
	}
	return lines + bottom
}

// RunTUI shows the live status until ctx is done. Ctrl+C calls interrupt.
func RunTUI(ctx context.Context, src Source, interrupt func()) error {
	p := tea.NewProgram(NewModel(src, interrupt), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Send(doneMsg{})
	}()

	_, err := p.Run()
	return err
}
