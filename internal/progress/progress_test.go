package progress_test

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/m-mizutani/gt"
	"github.com/romangod6/sitemapper/internal/progress"
)

type staticSource struct {
	snap progress.Snapshot
}

func (s *staticSource) Snapshot() progress.Snapshot { return s.snap }

func TestModel_View(t *testing.T) {
	src := &staticSource{snap: progress.Snapshot{Current: "https://example.com/learn", Visited: 3, Queued: 7}}
	m := progress.NewModel(src, nil)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 10})
	view := updated.View()

	gt.String(t, view).Contains("Current URL: https://example.com/learn")
	gt.String(t, view).Contains("Visited: 3 | Queue: 7")
	gt.Equal(t, strings.Count(view, "\n"), 8)
}

func TestModel_TruncatesLongURL(t *testing.T) {
	src := &staticSource{snap: progress.Snapshot{Current: "https://example.com/" + strings.Repeat("x", 100)}}
	m := progress.NewModel(src, nil)

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 5})
	first := strings.SplitN(updated.View(), "\n", 2)[0]

	gt.String(t, first).Contains("...")
	gt.False(t, strings.Contains(first, strings.Repeat("x", 40)))
}

func TestModel_CtrlCInterrupts(t *testing.T) {
	interrupted := false
	m := progress.NewModel(&staticSource{}, func() { interrupted = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	gt.True(t, interrupted)
	gt.V(t, cmd).NotNil()
}
