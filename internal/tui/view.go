package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-modpanel/internal/render"
)

const (
	defaultWidth  = 100
	defaultHeight = 30
	// rows taken by everything but the log panel
	chromeRows = 18
	minLogRows = 3
)

var (
	helpStyle    = render.MutedStyle
	runningStyle = render.OKStyle
	keyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
)

func (m Model) View() string {
	if m.width <= 0 {
		m.width = defaultWidth
	}
	if m.height <= 0 {
		m.height = defaultHeight
	}
	switch m.mode {
	case modeLogin:
		return m.viewLogin()
	case modePanel:
		return m.viewPanel()
	default:
		return render.TitleStyle.Render("modpanel") + "\n\n" + helpStyle.Render("Checking session…") + "\n"
	}
}

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(render.TitleStyle.Render("modpanel · Login"))
	b.WriteString("\n\n")
	if m.form != nil {
		for _, in := range m.form.inputs {
			b.WriteString(in.View())
			b.WriteString("\n")
		}
		b.WriteString("\n")
		switch {
		case m.form.busy:
			b.WriteString(helpStyle.Render("Logging in…"))
		case m.form.err != "":
			b.WriteString(render.ErrorStyle.Render(m.form.err))
		}
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("tab switch field · enter log in · esc quit"))
	return render.PanelStyle.Width(min(m.width-2, 60)).Render(b.String()) + "\n"
}

func (m Model) viewPanel() string {
	settings := m.panel.Settings()
	snap := m.panel.Snapshot()
	running := m.panel.Running()

	header := render.TitleStyle.Render("modpanel")
	if running {
		header += "  " + runningStyle.Render("● running")
	}

	half := max((m.width-4)/2, 30)
	settingsBox := render.PanelStyle.Width(half).Render(
		render.TitleStyle.Render("Settings") + "\n" + render.Settings(settings) + m.actionHint(running))
	statsBox := render.PanelStyle.Width(half).Render(
		render.TitleStyle.Render("Progress") + "\n" + render.Stats(snap, m.panel.StatusLabel(), running))
	top := lipgloss.JoinHorizontal(lipgloss.Top, settingsBox, statsBox)

	logRows := max(m.height-chromeRows, minLogRows)
	logsBox := render.PanelStyle.Width(m.width - 2).Render(
		render.TitleStyle.Render("Logs") + "\n" + strings.TrimRight(render.Logs(snap.Logs, logRows), "\n"))

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	b.WriteString(top)
	b.WriteString("\n")
	b.WriteString(logsBox)
	b.WriteString("\n")
	if m.status != "" {
		if m.statusErr {
			b.WriteString(render.ErrorStyle.Render(m.status))
		} else {
			b.WriteString(render.OKStyle.Render(m.status))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.helpLine())
	return b.String()
}

func (m Model) actionHint(running bool) string {
	if running {
		return "\n" + keyStyle.Render("[s]") + " Stop"
	}
	return "\n" + keyStyle.Render("[s]") + " Start"
}

func (m Model) helpLine() string {
	keys := []struct{ key, what string }{
		{"s", "start/stop"},
		{"r", "refresh"},
		{"g/a", "game/action"},
		{"-/+", "threads"},
		{"[/]", "sleep"},
		{"</>", "live stats"},
		{"l", "logout"},
		{"q", "quit"},
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", keyStyle.Render(k.key), helpStyle.Render(k.what)))
	}
	return strings.Join(parts, helpStyle.Render(" · "))
}
