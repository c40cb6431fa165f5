package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tomaslejdung/coview/pkg/session"
	"github.com/tomaslejdung/coview/pkg/viewer"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	presenterStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// statusTickMsg drives the periodic status refresh
type statusTickMsg time.Time

// model is the bubbletea model for the session status screen
type model struct {
	ctx     context.Context
	session *session.Session
	demo    *viewer.DemoViewer
	status  session.Status
	lastErr string
}

func statusTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m model) Init() tea.Cmd {
	return statusTick()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusTickMsg:
		m.status = m.session.Status()
		return m, statusTick()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.demo.SetOrbiting(true)
			if err := m.session.Present(m.ctx); err != nil {
				m.lastErr = err.Error()
			} else {
				m.lastErr = ""
			}
		case "s":
			m.demo.SetOrbiting(false)
			if err := m.session.StopPresenting(m.ctx); err != nil {
				m.lastErr = err.Error()
			} else {
				m.lastErr = ""
			}
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("coview") + "  ")
	b.WriteString(codeStyle.Render(m.status.SessionCode) + "\n\n")

	role := "follower"
	if m.status.IsLeader {
		role = presenterStyle.Render("presenting")
	} else if m.status.ConnectedLeaderID != "" {
		role = "following " + shortID(m.status.ConnectedLeaderID)
	} else if m.status.LeaderID != "" {
		role = "connecting to " + shortID(m.status.LeaderID)
	}
	b.WriteString(fmt.Sprintf("  %s %s\n", dimStyle.Render("role:"), role))
	b.WriteString(fmt.Sprintf("  %s read %s / write %s\n",
		dimStyle.Render("store:"),
		statusStyle.Render(m.status.StoreRead.String()),
		statusStyle.Render(m.status.StoreWrite.String())))

	if m.status.IsLeader {
		b.WriteString(fmt.Sprintf("  %s camera %.0f/s (%d), selection %.0f/s (%d)\n",
			dimStyle.Render("sent:"),
			m.status.CameraRate, m.status.CameraMsgs,
			m.status.SelectionRate, m.status.SelectionMsgs))
	}

	b.WriteString("\n  " + dimStyle.Render(fmt.Sprintf("peers (%d):", len(m.status.Peers))) + "\n")
	if len(m.status.Peers) == 0 {
		b.WriteString(dimStyle.Render("    waiting for others to join...") + "\n")
	}
	for _, peer := range m.status.Peers {
		age := time.Since(peer.LastSeen).Round(time.Second)
		line := fmt.Sprintf("    %-12s %s  seen %s ago", peer.Name, shortID(peer.ID), age)
		if m.status.IsLeader {
			line += "  [" + peer.State + "]"
		}
		b.WriteString(line + "\n")
	}

	if m.lastErr != "" {
		b.WriteString("\n  " + errorStyle.Render(m.lastErr) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("  p: present  s: stop  q: quit") + "\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunTUI runs the status TUI until the user quits.
func RunTUI(ctx context.Context, sess *session.Session, demo *viewer.DemoViewer) error {
	m := model{
		ctx:     ctx,
		session: sess,
		demo:    demo,
		status:  sess.Status(),
	}
	_, err := tea.NewProgram(m).Run()
	return err
}
