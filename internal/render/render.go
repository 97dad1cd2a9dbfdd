// Package render formats job snapshots and settings for the terminal.
package render

import (
	"fmt"
	"strings"

	"go-modpanel/internal/models"
	"go-modpanel/internal/prefs"

	"github.com/charmbracelet/lipgloss"
)

const NoLogs = "No logs available."

var (
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	MutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	OKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	PanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	LogStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

// CategoryTitle names the category counter for the current phase. The
// backend reuses the category counters for file batches and mapped mods.
func CategoryTitle(phase string) string {
	switch phase {
	case models.PhaseFixing:
		return "File Batch"
	case models.PhaseMapping:
		return "Mods Used"
	}
	return "Categories"
}

// Percent formats a percentage with one decimal.
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%% complete", v)
}

// Stats renders the phase label and the progress counters. The category
// percentage is shown only while fixing and the mods percentage only while
// running.
func Stats(s models.Snapshot, label string, running bool) string {
	p := s.Progress
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", MutedStyle.Render("Status:"), TitleStyle.Render(label))
	fmt.Fprintf(&b, "%s %d\n", MutedStyle.Render("Files processed:"), p.TotalFilesProcessed())

	fmt.Fprintf(&b, "%s %d / %d", MutedStyle.Render(CategoryTitle(s.CurrentTask)+":"), p.CategoriesDone(), p.CategoriesTotal())
	if s.CurrentTask == models.PhaseFixing {
		fmt.Fprintf(&b, "  %s", Percent(p.CategoryPercent()))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s %d / %d", MutedStyle.Render("Mods:"), p.ModsDone(), p.ModsTotal())
	if running {
		fmt.Fprintf(&b, "  %s", Percent(p.ModsPercent()))
	}
	b.WriteString("\n")

	if c := p.Category(); c.Name != "" {
		fmt.Fprintf(&b, "%s %s (%d/%d)\n", MutedStyle.Render("Current:"), c.Name, int(c.Done), int(c.Total))
	}
	return b.String()
}

// Logs renders the last max lines, oldest first. Lines containing [ERROR]
// use the error style. max <= 0 renders every line.
func Logs(lines []string, max int) string {
	if len(lines) == 0 {
		return MutedStyle.Render(NoLogs) + "\n"
	}
	if max > 0 && len(lines) > max {
		lines = lines[len(lines)-max:]
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(LogLine(line))
		b.WriteString("\n")
	}
	return b.String()
}

// LogLine styles a single log line.
func LogLine(line string) string {
	if IsErrorLine(line) {
		return ErrorStyle.Render(line)
	}
	return LogStyle.Render(line)
}

func IsErrorLine(line string) bool {
	return strings.Contains(line, "[ERROR]")
}

// PollLabel is the live stats indicator: the interval, or "Off".
func PollLabel(p prefs.Preferences) string {
	if !p.LiveStats || p.PollInterval == 0 {
		return "Off"
	}
	return prefs.FormatFloat(p.PollInterval) + "s"
}

// Settings renders the preferences as a key/value block.
func Settings(p prefs.Preferences) string {
	rows := [][2]string{
		{"Game", fmt.Sprintf("%s (%s)", p.Game.Label(), p.Game)},
		{"Action", p.Action.Label()},
		{"Threads", fmt.Sprintf("%d", p.Threads)},
		{"Sleep", prefs.FormatFloat(p.Sleep) + "s"},
		{"Live stats", PollLabel(p)},
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-11s %s\n", MutedStyle.Render(r[0]+":"), r[1])
	}
	return b.String()
}
