package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	wasmhost "github.com/wippyai/wasm-host"
	"github.com/wippyai/wasm-host/host"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type monitorModel struct {
	h        *host.Host
	stats    host.Stats
	inputs   []textinput.Model
	focusIdx int
	state    monitorState
	status   string
	fail     error
}

type monitorState int

const (
	stateWatch monitorState = iota
	statePost
)

type tickMsg time.Time

func newMonitorModel(h *host.Host) *monitorModel {
	return &monitorModel{h: h, stats: h.Stats()}
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *monitorModel) Init() tea.Cmd {
	return tick()
}

func (m *monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.stats = m.h.Stats()
		return m, tick()

	case tea.KeyMsg:
		switch m.state {
		case stateWatch:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "p":
				m.prepareInputs()
				m.state = statePost
			}

		case statePost:
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc":
				m.state = stateWatch
				m.inputs = nil
			case "tab":
				if len(m.inputs) > 1 {
					m.inputs[m.focusIdx].Blur()
					m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
					m.inputs[m.focusIdx].Focus()
				}
			case "enter":
				m.postEvent()
				m.state = stateWatch
				m.inputs = nil
			}
		}
	}

	if m.state == statePost {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *monitorModel) prepareInputs() {
	fields := []struct {
		prompt      string
		placeholder string
	}{
		{"owner: ", "module handle"},
		{"type: ", "timer|gpio|sensor"},
		{"id: ", "0"},
		{"port: ", "0"},
		{"state: ", "0"},
	}
	m.inputs = make([]textinput.Model, len(fields))
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = f.prompt
		ti.Placeholder = f.placeholder
		ti.Width = 24
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *monitorModel) postEvent() {
	owner := wasmhost.Handle(strings.TrimSpace(m.inputs[0].Value()))
	rt, err := parseResourceType(strings.TrimSpace(m.inputs[1].Value()))
	if err != nil {
		m.status, m.fail = "", err
		return
	}
	num := func(i int) uint32 {
		v, _ := strconv.ParseUint(strings.TrimSpace(m.inputs[i].Value()), 10, 32)
		return uint32(v)
	}
	id, port, state := num(2), num(3), num(4)

	switch rt {
	case wasmhost.ResourceTimer:
		err = m.h.PostTimer(owner, id)
	case wasmhost.ResourceGPIO:
		err = m.h.PostGPIO(owner, id, state)
	case wasmhost.ResourceSensor:
		err = m.h.PostSensor(owner, id, port, state)
	}
	if err != nil {
		m.status, m.fail = "", err
		return
	}
	m.status, m.fail = fmt.Sprintf("posted %s event for %s", rt, owner), nil
}

func (m *monitorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Host Monitor"))
	b.WriteString("\n\n")

	s := m.stats
	row := func(label string, value any) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%v", value)))
		b.WriteString("\n")
	}
	row("running", s.Running)
	row("modules", s.Modules)
	row("queue", fmt.Sprintf("%d/%d", s.QueueDepth, s.QueueCap))
	row("posted", s.Posted)
	row("rejected", s.Rejected)
	row("dropped", s.Dropped)
	row("dispatched", s.Dispatch.Dispatched)
	row("failed", s.Dispatch.Failed)
	row("discarded", s.Dispatch.Discarded)
	row("retries", s.Dispatch.Retries)
	for i, w := range s.Workers {
		cur := "idle"
		if w.Valid() {
			cur = string(w)
		}
		row(fmt.Sprintf("worker %d", i), cur)
	}
	b.WriteString("\n")

	switch m.state {
	case stateWatch:
		if m.fail != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.fail)))
			b.WriteString("\n")
		} else if m.status != "" {
			b.WriteString(statusStyle.Render(m.status))
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("p post event • q quit"))

	case statePost:
		b.WriteString("Post an event:\n\n")
		for _, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter post • esc back"))
	}

	return b.String()
}

func runMonitor(h *host.Host) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}
	p := tea.NewProgram(newMonitorModel(h), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
