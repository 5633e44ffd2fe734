package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keelhaul-sec/keelhaul/internal/console"
)

// trafficMsg carries one console traffic event into the TUI.
type trafficMsg console.Event

// streamClosedMsg signals the monitored session has ended.
type streamClosedMsg struct{}

// monitorModel is the live console monitor: a scrollback viewport fed by a
// console.ChannelMonitor, rendering target output and operator input in
// different colors.
type monitorModel struct {
	viewport viewport.Model
	events   <-chan console.Event
	device   string
	content  strings.Builder
	ready    bool
	closed   bool
}

func newMonitorModel(device string, events <-chan console.Event) monitorModel {
	return monitorModel{device: device, events: events}
}

// waitForEvent blocks on the next traffic event.
func (m monitorModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return streamClosedMsg{}
		}
		return trafficMsg(ev)
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.waitForEvent()
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 1
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.viewport.SetContent(m.content.String())
		m.viewport.GotoBottom()
		return m, nil

	case trafficMsg:
		style := ConsoleReadStyle
		if msg.Dir == console.DirWrite {
			style = ConsoleWriteStyle
		}
		m.content.WriteString(style.Render(string(msg.Data)))

		atBottom := m.viewport.AtBottom()
		m.viewport.SetContent(m.content.String())
		if atBottom {
			m.viewport.GotoBottom()
		}
		return m, m.waitForEvent()

	case streamClosedMsg:
		m.closed = true
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m monitorModel) View() string {
	if !m.ready {
		return "initializing..."
	}

	title := TitleStyle.Render("CONSOLE MONITOR")
	device := MutedStyle.Render("  " + m.device)
	header := lipgloss.JoinHorizontal(lipgloss.Top, title, device)

	footer := MutedStyle.Render("  ↑/↓ scroll · q quit")
	if m.closed {
		footer = MutedStyle.Render("  session ended · q quit")
	}

	return fmt.Sprintf("%s\n\n%s\n%s", header, m.viewport.View(), footer)
}

// RunMonitor runs the live console monitor until the user quits or the
// event stream closes and the user quits. It owns the terminal while
// running (alternate screen).
func RunMonitor(device string, events <-chan console.Event) error {
	p := tea.NewProgram(
		newMonitorModel(device, events),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err := p.Run()
	return err
}
