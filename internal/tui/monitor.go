// Package tui is a live terminal view of a running simulated target.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/enipcore/internal/server"
)

// StatsSource is polled on every tick. *server.Server implements it.
type StatsSource interface {
	Stats() server.Stats
}

// Info is the fixed part of the header.
type Info struct {
	Addr        string
	Slot        uint8
	ProductName string
}

const (
	defaultInterval = 500 * time.Millisecond
	historySize     = 40
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

type tickMsg time.Time

// Monitor is the bubbletea model for serve --tui.
type Monitor struct {
	source   StatsSource
	info     Info
	styles   Styles
	interval time.Duration
	stats    server.Stats
	last     uint64
	history  []uint64
	width    int
	now      func() time.Time
}

// NewMonitor creates a monitor that polls source.
func NewMonitor(source StatsSource, info Info) *Monitor {
	return &Monitor{
		source:   source,
		info:     info,
		styles:   DefaultStyles,
		interval: defaultInterval,
		stats:    source.Stats(),
		width:    72,
		now:      time.Now,
	}
}

func (m *Monitor) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return m.tick()
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
		return m, nil
	case tickMsg:
		m.refresh()
		return m, m.tick()
	}
	return m, nil
}

// refresh samples the source and records the request delta since the last sample.
func (m *Monitor) refresh() {
	m.stats = m.source.Stats()
	delta := m.stats.Requests - m.last
	m.last = m.stats.Requests
	m.history = append(m.history, delta)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
}

// View implements tea.Model.
func (m *Monitor) View() string {
	s := m.styles
	st := m.stats
	row := func(label, value string) string {
		return s.Label.Render(label) + value
	}
	uptime := "-"
	if !st.Started.IsZero() {
		uptime = m.now().Sub(st.Started).Truncate(time.Second).String()
	}
	failures := s.Success.Render("0")
	if st.Failures > 0 {
		failures = s.Error.Render(fmt.Sprint(st.Failures))
	}
	lastPeer := st.LastPeer
	if lastPeer == "" {
		lastPeer = "-"
	}

	lines := []string{
		s.Title.Render(fmt.Sprintf("%s on %s (slot %d)", m.info.ProductName, m.info.Addr, m.info.Slot)),
		row("uptime", s.Value.Render(uptime)),
		row("connections", s.Value.Render(fmt.Sprint(st.Connections))),
		row("sessions", s.Value.Render(fmt.Sprintf("%d active, %d total", st.Sessions, st.Registered))),
		row("requests", s.Value.Render(fmt.Sprint(st.Requests))),
		row("failures", failures),
		row("last peer", s.Value.Render(lastPeer)),
		row("activity", s.Spark.Render(sparkline(m.history))),
	}
	width := m.width - 2
	if width < 40 {
		width = 40
	}
	body := s.Panel.Width(width).Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, body, s.KeyHint.Render(" q quit"))
}

// sparkline scales values to the block characters; an all-zero history is flat.
func sparkline(values []uint64) string {
	if len(values) == 0 {
		return ""
	}
	var peak uint64
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = int(v * uint64(len(sparkRunes)-1) / peak)
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// Run shows the monitor until the user quits or ctx is cancelled.
func Run(ctx context.Context, m *Monitor) error {
	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
