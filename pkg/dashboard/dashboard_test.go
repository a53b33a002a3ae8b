package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/slaclab/acclive/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoller struct {
	snap  *monitor.Snapshot
	err   error
	calls int
}

func (p *fakePoller) Poll(ctx context.Context) (*monitor.Snapshot, error) {
	p.calls++
	return p.snap, p.err
}

func twissSnapshot() *monitor.Snapshot {
	return &monitor.Snapshot{
		Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Values: map[string]any{
			monitor.KeyS:          []float64{0, 1, 2, 3},
			monitor.KeyBetaA:      []float64{10, 20, 30, 40},
			monitor.KeyBetaB:      []float64{5, 5, 5, 5},
			"QUAD:LI21:201:BCTRL": 1.25,
		},
		Errors: map[string]error{},
	}
}

func TestResample(t *testing.T) {
	got := resample([]float64{0, 1, 1, 3}, []float64{0, 10, 20, 40}, 4)
	assert.InDeltaSlice(t, []float64{0, 10, 30, 40}, got, 1e-9)

	assert.Equal(t, []float64{7, 7}, resample([]float64{2}, []float64{7}, 2))
	assert.Nil(t, resample(nil, nil, 5))
}

func TestPlotTwiss(t *testing.T) {
	out := plotTwiss([]float64{0, 1, 2}, []float64{1, 2, 3}, []float64{3, 2, 1}, 30, 5)
	assert.Contains(t, out, "beta_a")
	assert.Empty(t, plotTwiss(nil, nil, nil, 30, 5))
}

func TestInitPolls(t *testing.T) {
	p := &fakePoller{snap: twissSnapshot()}
	m := New(context.Background(), p, Config{})

	cmd := m.Init()
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, snapshotMsg{}, msg)
	assert.Equal(t, 1, p.calls)
	assert.Equal(t, DefaultInterval, m.config.Interval)
}

func TestUpdateSnapshot(t *testing.T) {
	p := &fakePoller{}
	m := New(context.Background(), p, Config{Title: "BMAD", Inputs: []string{"QUAD:LI21:201:BCTRL", "KLYS:LI21:11:ENLD"}})
	assert.Contains(t, m.View(), "waiting for data")

	next, cmd := m.Update(snapshotMsg{snap: twissSnapshot()})
	require.NotNil(t, cmd, "a snapshot schedules the next tick")
	m = next.(Model)
	assert.Equal(t, 1, m.polls)

	view := m.View()
	assert.Contains(t, view, "BMAD")
	assert.Contains(t, view, "beta_a")
	assert.Contains(t, view, "QUAD:LI21:201:BCTRL")
	assert.Contains(t, view, "1.25")
	assert.Contains(t, view, "03:04:05")
}

func TestUpdateKeepsLastSnapshotOnError(t *testing.T) {
	m := New(context.Background(), &fakePoller{}, Config{})
	next, _ := m.Update(snapshotMsg{snap: twissSnapshot()})
	next, _ = next.(Model).Update(snapshotMsg{err: errors.New("poll failed")})
	m = next.(Model)

	assert.NotNil(t, m.snap)
	assert.Contains(t, m.View(), "poll failed")
}

func TestPauseAndQuit(t *testing.T) {
	p := &fakePoller{snap: twissSnapshot()}
	m := New(context.Background(), p, Config{})

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m = next.(Model)
	assert.True(t, m.paused)
	assert.Contains(t, m.View(), "paused")

	// While paused a tick only reschedules.
	_, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())
}

func TestWindowSize(t *testing.T) {
	m := New(context.Background(), &fakePoller{}, Config{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 60, Height: 20})
	assert.Equal(t, 60, next.(Model).width)
}
