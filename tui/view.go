package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255")).
		Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("236")).
		Foreground(lipgloss.Color("255"))

	tabActiveStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		Underline(true)

	tabInactiveStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("244"))

	availableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	occupiedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimmedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selectedStyle  = lipgloss.NewStyle().Background(lipgloss.Color("238"))
)

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder

	header := fmt.Sprintf(" Vacancy Verifier │ %s │ Progress: %d/%d │ Results: %d │ Actions: %d ",
		statusLabel(m.snapshot.Status), m.snapshot.Progress.Current, m.snapshot.Progress.Total,
		len(m.results), len(m.actions))
	b.WriteString(headerStyle.Width(m.width).Render(header))
	b.WriteString("\n")

	b.WriteString(m.renderTabs())
	b.WriteString("\n")

	var section string
	switch m.activeTab {
	case TabLive:
		section = m.renderLive()
	case TabResults:
		section = m.renderResults()
	case TabActions:
		section = m.renderActions(m.visibleRows())
	}
	b.WriteString(sectionStyle.Width(m.width - 2).Render(section))
	b.WriteString("\n")

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderTabs() string {
	names := []string{"Live [l]", "Results [r]", "Actions [a]"}
	parts := make([]string, len(names))
	for i, name := range names {
		if i == m.activeTab {
			parts[i] = tabActiveStyle.Render(name)
		} else {
			parts[i] = tabInactiveStyle.Render(name)
		}
	}
	return " " + strings.Join(parts, "   ")
}

func (m Model) renderLive() string {
	var b strings.Builder
	s := m.snapshot

	b.WriteString(titleStyle.Render("NOW"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status:  %s\n", statusLabel(s.Status))
	fmt.Fprintf(&b, "Site:    %s\n", orDash(s.CurrentSite))
	fmt.Fprintf(&b, "Action:  %s\n", orDash(s.CurrentAction))
	if s.AIThought != "" {
		fmt.Fprintf(&b, "Thought: %s\n", dimmedStyle.Render(s.AIThought))
	}
	if s.Progress.Total > 0 {
		fmt.Fprintf(&b, "Progress: %s %d/%d\n", progressBar(s.Progress.Current, s.Progress.Total, 20),
			s.Progress.Current, s.Progress.Total)
	}
	if m.screenshotLen > 0 {
		fmt.Fprintf(&b, "Screen:  %s sample, %s\n", humanize.Bytes(uint64(m.screenshotLen)), humanize.Time(m.screenshotAt))
	}

	if m.lastError != "" {
		b.WriteString("\n")
		b.WriteString(occupiedStyle.Render(fmt.Sprintf("Error (%s): %s", humanize.Time(m.errorAt), m.lastError)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("RECENT ACTIONS"))
	b.WriteString("\n")
	b.WriteString(m.renderActions(8))
	return b.String()
}

func (m Model) renderResults() string {
	var b strings.Builder
	counts := m.countByStatus()
	b.WriteString(titleStyle.Render("RESULTS"))
	fmt.Fprintf(&b, "  %s available · %s occupied · %s needs call · %s unknown\n",
		availableStyle.Render(fmt.Sprint(counts[domain.FinalAvailable])),
		occupiedStyle.Render(fmt.Sprint(counts[domain.FinalOccupied])),
		warningStyle.Render(fmt.Sprint(counts[domain.FinalNeedsCall])),
		dimmedStyle.Render(fmt.Sprint(counts[domain.FinalUnknown])))

	if len(m.results) == 0 {
		b.WriteString(dimmedStyle.Render("No properties verified yet"))
		return b.String()
	}

	for i, r := range m.results {
		line := fmt.Sprintf("%-32s %s", truncate(r.Label(), 32), verdictLabel(r))
		if r.Result != nil {
			line += dimmedStyle.Render(fmt.Sprintf("  %d site(s), %s", len(r.Result.VerificationResults),
				humanize.Time(r.Result.LastVerified)))
		}
		if i == m.selectedRow {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")

		if i == m.selectedRow && r.Result != nil {
			for _, site := range r.Result.VerificationResults {
				fmt.Fprintf(&b, "    %-12s %-10s %s\n", truncate(site.SiteName, 12), site.Status, dimmedStyle.Render(site.Notes))
			}
		}
	}
	return b.String()
}

// renderActions renders the newest limit actions, newest last
func (m Model) renderActions(limit int) string {
	if len(m.actions) == 0 {
		return dimmedStyle.Render("No activity yet")
	}
	start := 0
	if limit > 0 && len(m.actions) > limit {
		start = len(m.actions) - limit
	}
	if m.activeTab == TabActions && m.selectedRow < start {
		start = m.selectedRow
	}
	end := len(m.actions)
	if limit > 0 && end-start > limit {
		end = start + limit
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		a := m.actions[i]
		line := fmt.Sprintf("%-8s %-10s %s", a.Type, truncate(a.Target, 10), a.Description)
		if a.Type == telemetry.ActionInfo {
			line = warningStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString(dimmedStyle.Render("  " + humanize.Time(a.Timestamp)))
		b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	conn := availableStyle.Render("● connected")
	if !m.connected {
		conn = occupiedStyle.Render("● disconnected")
		if m.disconnect != nil {
			conn += dimmedStyle.Render(" (" + m.disconnect.Error() + ")")
		}
	}
	bar := fmt.Sprintf(" %s %s │ tab switch │ g start │ s stop │ q quit ", conn, dimmedStyle.Render(m.url))
	if m.notice != "" {
		bar += "│ " + m.notice + " "
	}
	return statusBarStyle.Width(m.width).Render(bar)
}

func (m Model) visibleRows() int {
	rows := m.height - 8
	if rows < 5 {
		rows = 5
	}
	return rows
}

func statusLabel(s telemetry.BrowserStatus) string {
	switch s {
	case telemetry.StatusRunning:
		return availableStyle.Render("running")
	case telemetry.StatusConnecting:
		return warningStyle.Render("connecting")
	case telemetry.StatusError:
		return occupiedStyle.Render("error")
	}
	return dimmedStyle.Render("idle")
}

func verdictLabel(t *domain.PropertyTask) string {
	if t.Status == domain.TaskError || t.Result == nil {
		return occupiedStyle.Render(string(t.Status))
	}
	status := string(t.Result.FinalStatus)
	switch t.Result.FinalStatus {
	case domain.FinalAvailable:
		return availableStyle.Render(status)
	case domain.FinalOccupied:
		return occupiedStyle.Render(status)
	case domain.FinalNeedsCall:
		return warningStyle.Render(status)
	}
	return dimmedStyle.Render(status)
}

func progressBar(current, total, width int) string {
	if total <= 0 {
		return ""
	}
	filled := current * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncate shortens s to n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
