// Package stats accounts for analyzer runs across a session.
//
// This file implements the exit summary formatter which renders the
// session totals at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryConfig carries session context the aggregator does not track
// itself.
type SummaryConfig struct {
	// Interpreter is the configured interpreter binary.
	Interpreter string

	// Concurrent is the configured concurrent run limit.
	Concurrent int

	// MetricsAddr is the Prometheus metrics endpoint address, empty
	// when the server was disabled.
	MetricsAddr string

	// Call guard counters.
	GuardCalls      int64
	GuardExecutions int64
	GuardAttached   int64

	// Progress pipeline counters.
	ProgressEvents  int64
	ProgressDropped int64

	// ErrorPatterns maps stderr failure markers to occurrence counts,
	// from the stderr reporter.
	ErrorPatterns map[string]int
}

// FormatExitSummary formats the session totals for display at program
// exit.
//
// The summary includes:
// - Pipeline degradation warning (if applicable)
// - Session information
// - Run results with success rate
// - Run duration percentiles
// - Output stream volumes
// - Call guard activity
// - Exit codes and stderr failure patterns
// - Footnotes with diagnostic information
func FormatExitSummary(stats *SessionStats, cfg SummaryConfig) string {
	if stats == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                      go-analysis-harness Session Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Pipeline degradation warning (progress delivery is lossy under
	// backpressure)
	if cfg.ProgressDropped > 0 && cfg.ProgressDropped*100 >= cfg.ProgressEvents {
		b.WriteString("⚠️  PROGRESS DEGRADED: the event pipeline could not keep up\n")
		fmt.Fprintf(&b, "    Events: %s dropped, %s delivered\n",
			FormatNumber(cfg.ProgressDropped),
			FormatNumber(cfg.ProgressEvents),
		)
		b.WriteString("    Consider: a larger --progress-buffer or fewer concurrent runs\n\n")
	}

	// Session info
	fmt.Fprintf(&b, "Session Duration:       %s\n", FormatDuration(stats.Elapsed))
	if cfg.Interpreter != "" {
		fmt.Fprintf(&b, "Interpreter:            %s\n", cfg.Interpreter)
	}
	if cfg.Concurrent > 0 {
		fmt.Fprintf(&b, "Concurrent Limit:       %d\n", cfg.Concurrent)
	}
	fmt.Fprintf(&b, "Runs Started:           %s\n", FormatNumber(stats.TotalStarts))
	fmt.Fprintf(&b, "Runs Completed:         %s\n", FormatNumber(stats.TotalCompleted))
	if n := len(stats.ActiveRuns); n > 0 {
		fmt.Fprintf(&b, "Still Running:          %d\n", n)
	}
	b.WriteString("\n")

	// Run results
	if stats.TotalCompleted > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Run Results\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  %-16s %12s %12s\n", "Result", "Count", "Share")
		b.WriteString("  " + strings.Repeat("─", 42) + "\n")
		for _, result := range resultRows(stats.ResultCounts) {
			count := stats.ResultCounts[result]
			share := float64(count) * 100 / float64(stats.TotalCompleted)
			fmt.Fprintf(&b, "  %-16s %12s %11.1f%%\n", result, FormatNumber(count), share)
		}
		fmt.Fprintf(&b, "\n  Success Rate:         %.1f%%\n\n", stats.SuccessRate()*100)
	}

	// Run durations
	if stats.DurationMax > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                 Run Durations\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  P50 (median):         %s\n", FormatMs(stats.DurationP50))
		fmt.Fprintf(&b, "  P90:                  %s\n", FormatMs(stats.DurationP90))
		fmt.Fprintf(&b, "  P99:                  %s\n", FormatMs(stats.DurationP99))
		fmt.Fprintf(&b, "  Min / Max:            %s / %s\n", FormatMs(stats.DurationMin), FormatMs(stats.DurationMax))
		fmt.Fprintf(&b, "  Average:              %s\n\n", FormatMs(stats.DurationAvg))
	}

	// Output streams
	if stats.TotalStdoutBytes > 0 || stats.TotalStderrBytes > 0 || cfg.ProgressEvents > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                Output Streams\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Stdout Captured:      %s\n", FormatBytes(stats.TotalStdoutBytes))
		fmt.Fprintf(&b, "  Stderr Captured:      %s\n", FormatBytes(stats.TotalStderrBytes))
		if cfg.ProgressEvents > 0 {
			fmt.Fprintf(&b, "  Progress Events:      %s\n", FormatNumber(cfg.ProgressEvents))
		}
		if cfg.ProgressDropped > 0 {
			fmt.Fprintf(&b, "  Progress Dropped:     %s\n", FormatNumber(cfg.ProgressDropped))
		}
		b.WriteString("\n")
	}

	// Call guard
	if cfg.GuardCalls > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Call Guard\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Calls:                %s\n", FormatNumber(cfg.GuardCalls))
		fmt.Fprintf(&b, "  Executions:           %s\n", FormatNumber(cfg.GuardExecutions))
		fmt.Fprintf(&b, "  Attached:             %s (%.1f%% shared an in-flight run)\n\n",
			FormatNumber(cfg.GuardAttached),
			float64(cfg.GuardAttached)*100/float64(cfg.GuardCalls),
		)
	}

	// Exit codes
	if len(stats.ExitCodes) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Exit Codes\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		// Sort exit codes for consistent output
		codes := make([]int, 0, len(stats.ExitCodes))
		for code := range stats.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %s\n", code, exitCodeLabel(code), FormatNumber(stats.ExitCodes[code]))
		}
		b.WriteString("\n")
	}

	// Stderr failure patterns
	if len(cfg.ErrorPatterns) > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                               Stderr Patterns\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		for _, pattern := range patternRows(cfg.ErrorPatterns) {
			fmt.Fprintf(&b, "  %-22s %d\n", pattern+":", cfg.ErrorPatterns[pattern])
		}
		b.WriteString("\n")
	}

	// Footnotes (diagnostic information)
	if footnotes := renderFootnotes(stats, cfg); footnotes != "" {
		b.WriteString(footnotes)
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// formatBasicSummary formats a minimal summary when no run accounting
// is available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                      go-analysis-harness Session Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	if cfg.Interpreter != "" {
		fmt.Fprintf(&b, "Interpreter:            %s\n", cfg.Interpreter)
	}
	if cfg.Concurrent > 0 {
		fmt.Fprintf(&b, "Concurrent Limit:       %d\n", cfg.Concurrent)
	}
	b.WriteString("\n(No runs were recorded for this session)\n\n")

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// resultRows orders result names for display: the known results in
// their fixed order, then anything unexpected sorted by name.
func resultRows(counts map[string]int64) []string {
	known := make(map[string]bool, len(ResultOrder))
	rows := make([]string, 0, len(counts))
	for _, result := range ResultOrder {
		known[result] = true
		if counts[result] > 0 {
			rows = append(rows, result)
		}
	}

	var extra []string
	for result, count := range counts {
		if !known[result] && count > 0 {
			extra = append(extra, result)
		}
	}
	sort.Strings(extra)

	return append(rows, extra...)
}

// patternRows orders stderr patterns by count, most frequent first,
// breaking ties by name.
func patternRows(counts map[string]int) []string {
	rows := make([]string, 0, len(counts))
	for pattern := range counts {
		rows = append(rows, pattern)
	}
	sort.Slice(rows, func(i, j int) bool {
		if counts[rows[i]] == counts[rows[j]] {
			return rows[i] < rows[j]
		}
		return counts[rows[i]] > counts[rows[j]]
	})
	return rows
}

// renderFootnotes adds diagnostic info that doesn't belong in main
// sections.
func renderFootnotes(stats *SessionStats, cfg SummaryConfig) string {
	var footnotes []string

	if stats.SlowShutdowns > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[%d] Slow shutdowns: %d process(es) outlived run resolution and were reaped in the background",
			len(footnotes)+1, stats.SlowShutdowns))
	}

	if cfg.ProgressDropped > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[%d] Dropped progress events: %s (progress percentages are lower bounds)",
			len(footnotes)+1, FormatNumber(cfg.ProgressDropped)))
	}

	if n := stats.ResultCounts[ResultCancelled]; n > 0 {
		footnotes = append(footnotes, fmt.Sprintf(
			"[%d] Cancelled runs: %s (session shut down before they finished)",
			len(footnotes)+1, FormatNumber(n)))
	}

	if len(footnotes) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                   Footnotes\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
	for _, fn := range footnotes {
		fmt.Fprintf(&b, "  %s\n", fn)
	}
	b.WriteString("\n")
	return b.String()
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case -1:
		return "(no exit)"
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
