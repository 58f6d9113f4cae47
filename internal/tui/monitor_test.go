package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tturner/enipcore/internal/server"
)

type fakeSource struct {
	stats server.Stats
}

func (f *fakeSource) Stats() server.Stats { return f.stats }

func TestMonitorRefreshTracksRequestDeltas(t *testing.T) {
	src := &fakeSource{}
	m := NewMonitor(src, Info{Addr: "127.0.0.1:44818", ProductName: "bench"})

	src.stats.Requests = 5
	m.Update(tickMsg(time.Now()))
	src.stats.Requests = 7
	m.Update(tickMsg(time.Now()))

	if len(m.history) != 2 || m.history[0] != 5 || m.history[1] != 2 {
		t.Fatalf("history = %v", m.history)
	}
	for i := 0; i < historySize+5; i++ {
		m.refresh()
	}
	if len(m.history) != historySize {
		t.Fatalf("history length = %d, want %d", len(m.history), historySize)
	}
}

func TestMonitorView(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{stats: server.Stats{
		Started:    start,
		Sessions:   2,
		Registered: 9,
		Requests:   40,
		Failures:   3,
		LastPeer:   "10.0.0.7:50000",
	}}
	m := NewMonitor(src, Info{Addr: "0.0.0.0:44818", Slot: 2, ProductName: "bench"})
	m.now = func() time.Time { return start.Add(90 * time.Second) }

	view := m.View()
	for _, want := range []string{"bench on 0.0.0.0:44818 (slot 2)", "1m30s", "2 active, 9 total", "10.0.0.7:50000", "q quit"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitorQuitKeys(t *testing.T) {
	m := NewMonitor(&fakeSource{}, Info{})
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	} {
		_, cmd := m.Update(key)
		if cmd == nil {
			t.Fatalf("%q should quit", key.String())
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%q did not produce QuitMsg", key.String())
		}
	}
	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}}); cmd != nil {
		t.Fatalf("other keys should be ignored")
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline([]uint64{0, 0}); got != "▁▁" {
		t.Fatalf("flat sparkline = %q", got)
	}
	if got := sparkline([]uint64{0, 7, 14}); got != "▁▄█" {
		t.Fatalf("sparkline = %q", got)
	}
	if sparkline(nil) != "" {
		t.Fatalf("empty history should render nothing")
	}
}
