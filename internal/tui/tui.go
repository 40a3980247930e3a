// ABOUTME: Ops dashboard showing live registry/room counts for local operation
// ABOUTME: Grounded on the teacher's ServerTUI (bubbletea model, lipgloss styles, tick-driven refresh)
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beatsync/beatsync-server/internal/model"
)

// Status is one snapshot of process-wide state to render.
type Status struct {
	ListenAddr   string
	ActiveRooms  []string
	Stats        model.StatsSnapshot
	LastBackupAt time.Time
	LastBackupOK bool
}

// Dashboard owns the bubbletea program and a channel feeding it status
// updates from the poller in cmd/beatsync-server.
type Dashboard struct {
	program *tea.Program
	updates chan Status
	quit    chan struct{}
}

// New constructs a Dashboard. Call Start to block running the TUI.
func New() *Dashboard {
	return &Dashboard{
		updates: make(chan Status, 4),
		quit:    make(chan struct{}, 1),
	}
}

// Start runs the bubbletea program until the user quits. Blocking.
func (d *Dashboard) Start(listenAddr string) error {
	m := dashboardModel{
		status:    Status{ListenAddr: listenAddr},
		startTime: time.Now(),
		quit:      d.quit,
	}
	d.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for s := range d.updates {
			if d.program != nil {
				d.program.Send(statusMsg(s))
			}
		}
	}()

	_, err := d.program.Run()
	return err
}

// Update pushes a new status snapshot for the dashboard to render on its
// next tick. Non-blocking: drops the update if the channel is full.
func (d *Dashboard) Update(s Status) {
	select {
	case d.updates <- s:
	default:
	}
}

// Stop tears down the TUI program.
func (d *Dashboard) Stop() {
	if d.program != nil {
		d.program.Quit()
	}
	close(d.updates)
}

// QuitChan signals when the operator pressed q/ctrl+c, so the caller can
// fold it into its own shutdown path.
func (d *Dashboard) QuitChan() <-chan struct{} {
	return d.quit
}

type dashboardModel struct {
	status    Status
	startTime time.Time
	quitting  bool
	quit      chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m dashboardModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quit <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}
	case tickMsg:
		return m, tickEvery()
	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}
	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1)
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	roomHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))

	var b strings.Builder
	b.WriteString(titleStyle.Render("beatsync"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Listening: "))
	b.WriteString(valueStyle.Render(m.status.ListenAddr))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Rooms: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d (%d connected clients)", m.status.Stats.RoomCount, m.status.Stats.ConnectedClients)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Last backup: "))
	if m.status.LastBackupAt.IsZero() {
		b.WriteString(valueStyle.Render("none yet"))
	} else {
		status := "ok"
		if !m.status.LastBackupOK {
			status = "FAILED"
		}
		b.WriteString(valueStyle.Render(fmt.Sprintf("%s (%s)", time.Since(m.status.LastBackupAt).Round(time.Second), status)))
	}
	b.WriteString("\n\n")

	b.WriteString(roomHeaderStyle.Render(fmt.Sprintf("Active rooms (%d)", len(m.status.ActiveRooms))))
	b.WriteString("\n\n")
	if len(m.status.ActiveRooms) == 0 {
		b.WriteString(valueStyle.Render("  none"))
		b.WriteString("\n")
	} else {
		for _, id := range m.status.ActiveRooms {
			b.WriteString(valueStyle.Render("  - " + id))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))
	return b.String()
}
