package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the main session dashboard.
func (m Model) renderSummaryView() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Active runs
	sections = append(sections, m.renderActiveRuns())

	// Session totals (only if we have a snapshot)
	if m.stats != nil {
		sections = append(sections, m.renderSessionStats())
	}

	// Progress feed (only if events have arrived)
	if len(m.progressLog) > 0 {
		sections = append(sections, m.renderProgressFeed())
	}

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderStderrView renders the analyzer stderr panel.
func (m Model) renderStderrView() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())

	// Stderr table
	sections = append(sections, m.renderStderrPanel())

	// Footer
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	// Pipeline status indicator
	pipelineLabel := GetPipelineLabel(m.DropRate())

	// Build header line
	header := fmt.Sprintf(
		" go-analysis-harness │ %s │ Active: %d │ Done: %s │ Elapsed: %s ",
		pipelineLabel,
		m.ActiveCount(),
		stats.FormatNumber(m.CompletedCount()),
		stats.FormatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Active Runs
// =============================================================================

func (m Model) renderActiveRuns() string {
	title := sectionHeaderStyle.Render("Active Analyzers")

	if m.stats == nil || len(m.stats.ActiveRuns) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			dimStyle.Render("No analyzers running."),
		)
		return boxStyle.Width(m.width - 2).Render(content)
	}

	runs := m.stats.ActiveRuns
	title = lipgloss.JoinHorizontal(lipgloss.Left,
		m.spinner.View(),
		" ",
		sectionHeaderStyle.Render(fmt.Sprintf("Active Analyzers (%d/%d)", len(runs), m.concurrent)),
	)

	// Column header
	header := tableHeaderStyle.Render(fmt.Sprintf("%-18s %-*s %5s %9s  %s",
		"SCRIPT", m.bar.Width, "PROGRESS", "PCT", "ELAPSED", "LAST MESSAGE"))

	// Width left for the trailing message column
	msgWidth := m.width - m.bar.Width - 42
	if msgWidth < 10 {
		msgWidth = 10
	}

	// Rows (limit to fit screen)
	maxRows := m.height - 14
	if maxRows < 3 {
		maxRows = 3
	}

	var rows []string
	for i, run := range runs {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more", len(runs)-maxRows)))
			break
		}

		pct := run.Percent
		if pct > 100 {
			pct = 100
		}

		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}

		name := fmt.Sprintf("%-18s", truncate.StringWithTail(run.Analyzer, 18, "…"))
		bar := m.bar.ViewAs(float64(pct) / 100)
		elapsed := stats.FormatDuration(m.stats.Timestamp.Sub(run.StartedAt))
		message := truncate.StringWithTail(run.Message, uint(msgWidth), "…")

		row := lipgloss.JoinHorizontal(lipgloss.Left,
			rowStyle.Render(name),
			" ",
			bar,
			fmt.Sprintf(" %3d%%", pct),
			mutedStyle.Render(fmt.Sprintf("  %8s  ", elapsed)),
			rowStyle.Render(message),
		)
		rows = append(rows, row)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{title, header}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Session Totals
// =============================================================================

func (m Model) renderSessionStats() string {
	s := m.stats

	rows := []string{
		RenderKeyValue("Runs", fmt.Sprintf("%d started, %d completed, %d active",
			s.TotalStarts, s.TotalCompleted, len(s.ActiveRuns))),
	}

	// Success bar with styled counts
	if s.TotalCompleted > 0 {
		failureRate := 1 - s.SuccessRate()
		counts := lipgloss.JoinHorizontal(lipgloss.Left,
			valueGoodStyle.Render(fmt.Sprintf("  %d ok", s.Succeeded())),
			GetFailureRateStyle(failureRate).Render(fmt.Sprintf("  %d failed", s.Failed())),
		)
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Success:"),
			RenderProgressBar(s.SuccessRate(), 20),
			counts,
		))

		rows = append(rows, m.renderResultRow(s))
	}

	// Duration percentiles, once the first spawned run resolves
	if s.DurationMax > 0 {
		rows = append(rows, RenderKeyValue("Durations", fmt.Sprintf("p50 %s  p90 %s  p99 %s  max %s",
			stats.FormatMs(s.DurationP50),
			stats.FormatMs(s.DurationP90),
			stats.FormatMs(s.DurationP99),
			stats.FormatMs(s.DurationMax))))
	}

	// Output volumes
	rows = append(rows, RenderKeyValue("Output", fmt.Sprintf("stdout %s  stderr %s",
		stats.FormatBytes(s.TotalStdoutBytes),
		stats.FormatBytes(s.TotalStderrBytes))))

	// Rolling rates
	if m.completionRate != nil {
		rs := m.completionRate.Stats()
		rows = append(rows, renderRateRow("Completions", rs.Total, rs.Rate10s, rs.Rate60s))
	}
	if m.progressRate != nil {
		rs := m.progressRate.Stats()
		rows = append(rows, renderRateRow("Events", rs.Total, rs.Rate10s, rs.Rate60s))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Session")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// renderResultRow renders per-result counts in display order, skipping
// zero rows.
func (m Model) renderResultRow(s *stats.SessionStats) string {
	parts := []string{labelStyle.Render("Results:")}
	for _, result := range stats.ResultOrder {
		count := s.ResultCounts[result]
		if count == 0 {
			continue
		}
		parts = append(parts,
			GetResultStyle(result).Render(fmt.Sprintf("%s %d", result, count)),
			mutedStyle.Render("  "),
		)
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func renderRateRow(label string, total int64, rate10s, rate60s float64) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Width(8).Render(stats.FormatNumber(total)),
		mutedStyle.Render(" ("),
		valueStyle.Render(stats.FormatRate(rate10s)),
		mutedStyle.Render(" 10s, "),
		valueStyle.Render(stats.FormatRate(rate60s)),
		mutedStyle.Render(" 60s)"),
	)
}

// =============================================================================
// Progress Feed
// =============================================================================

func (m Model) renderProgressFeed() string {
	msgWidth := m.width - 44
	if msgWidth < 10 {
		msgWidth = 10
	}

	// Newest last, matching arrival order
	var rows []string
	for _, entry := range m.progressLog {
		suffix := ""
		if entry.increment > 0 {
			suffix = fmt.Sprintf(" (+%d)", entry.increment)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			dimStyle.Render(entry.at.Format("15:04:05")),
			mutedStyle.Render(fmt.Sprintf("  %-18s ", truncate.StringWithTail(entry.analyzer, 18, "…"))),
			valueStyle.Render(truncate.StringWithTail(entry.message, uint(msgWidth), "…")),
			dimStyle.Render(suffix),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Progress Feed")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Stderr Panel (toggled view)
// =============================================================================

func (m Model) renderStderrPanel() string {
	title := sectionHeaderStyle.Render("Analyzer Stderr")

	if m.diagnostics == nil {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			dimStyle.Render("Stderr reporting disabled. Press 'd' to return."),
		)
		return boxStyle.Width(m.width - 2).Render(content)
	}

	maxRows := m.height - 10
	if maxRows < 5 {
		maxRows = 5
	}

	lines := m.diagnostics.RecentLines(maxRows)
	if len(lines) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			title,
			dimStyle.Render("No stderr captured yet."),
		)
		return boxStyle.Width(m.width - 2).Render(content)
	}

	textWidth := m.width - 16
	if textWidth < 20 {
		textWidth = 20
	}

	var rows []string
	for i, line := range lines {
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			dimStyle.Render(fmt.Sprintf("%-8s ", shortID(line.ProcessID))),
			rowStyle.Render(truncate.StringWithTail(line.Text, uint(textWidth), "…")),
		))
	}

	// Failure pattern tallies under the table
	if counts := m.diagnostics.CountErrors(); len(counts) > 0 {
		patterns := make([]string, 0, len(counts))
		for pattern := range counts {
			patterns = append(patterns, pattern)
		}
		sort.Strings(patterns)

		parts := make([]string, 0, len(patterns))
		for _, pattern := range patterns {
			parts = append(parts, fmt.Sprintf("%s×%d", pattern, counts[pattern]))
		}
		rows = append(rows, "")
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			statusWarning.Render("Failure patterns: "),
			valueWarnStyle.Render(strings.Join(parts, "  ")),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{title}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	// Keyboard shortcuts
	shortcuts := []string{
		"q: quit",
		"d: toggle stderr",
		"r: refresh",
	}

	// Session context on the right
	right := "Interpreter: " + m.interpreter
	if m.metricsAddr != "" {
		right += " │ Metrics: " + m.metricsAddr
	}

	maxRight := m.width - 40
	if maxRight > 10 {
		right = truncate.StringWithTail(right, uint(maxRight), "…")
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := dimStyle.Render(right)

	// Pad to fill width
	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}
