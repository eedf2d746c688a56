// Package tui provides a live terminal dashboard for analyzer sessions.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for
// styling. It displays real-time session state including:
// - In-flight analyzer runs with per-run progress
// - Run results and success rate
// - Duration percentiles and throughput rates
// - Recent progress events and analyzer stderr
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
)

// =============================================================================
// Color Palette
// =============================================================================

// Colors based on a modern dark theme
var (
	// Primary colors
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	// Status colors
	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	// Neutral colors
	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)
)

// =============================================================================
// Status Indicator Styles
// =============================================================================

var (
	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	// Box/panel styles
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	// Header style
	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	// Section header style
	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	// Footer style
	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	// Numeric value styles
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	// Label styles
	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(14)

	// Progress bar fallback styles (used by RenderProgressBar)
	progressBarStyle = lipgloss.NewStyle().
				Foreground(colorPrimary)

	progressBarEmptyStyle = lipgloss.NewStyle().
				Foreground(colorBorder)

	progressPercentStyle = lipgloss.NewStyle().
				Foreground(colorText).
				Bold(true)
)

// =============================================================================
// Table Styles
// =============================================================================

var (
	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)
)

// =============================================================================
// Pipeline Status Indicator
// =============================================================================

// PipelineStatus represents the health of the progress pipeline.
type PipelineStatus int

const (
	PipelineStatusOK PipelineStatus = iota
	PipelineStatusLossy
	PipelineStatusSaturated
)

// GetPipelineStatus returns the status based on the event drop rate.
func GetPipelineStatus(dropRate float64) PipelineStatus {
	switch {
	case dropRate > 0.10: // >10% dropped
		return PipelineStatusSaturated
	case dropRate > 0.0: // Any drops
		return PipelineStatusLossy
	default:
		return PipelineStatusOK
	}
}

// GetPipelineLabel returns a styled header label based on the drop rate.
func GetPipelineLabel(dropRate float64) string {
	switch GetPipelineStatus(dropRate) {
	case PipelineStatusSaturated:
		return statusError.Render("● Progress (saturated)")
	case PipelineStatusLossy:
		return statusWarning.Render("● Progress (lossy)")
	default:
		return statusOK.Render("● Progress")
	}
}

// GetPipelineStyle returns the appropriate style for the pipeline status.
func GetPipelineStyle(status PipelineStatus) lipgloss.Style {
	switch status {
	case PipelineStatusSaturated:
		return statusError
	case PipelineStatusLossy:
		return statusWarning
	default:
		return statusOK
	}
}

// =============================================================================
// Result Indicators
// =============================================================================

// GetResultStyle returns a style for a run result label.
func GetResultStyle(result string) lipgloss.Style {
	switch result {
	case stats.ResultReport:
		return valueGoodStyle
	case stats.ResultCancelled:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// GetFailureRateStyle returns a style based on the failed fraction of
// completed runs.
func GetFailureRateStyle(failureRate float64) lipgloss.Style {
	switch {
	case failureRate == 0:
		return valueGoodStyle
	case failureRate < 0.25:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderProgressBar renders a plain progress bar with a trailing percent.
func RenderProgressBar(progress float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := progressBarStyle.Render(repeatChar('█', filled)) +
		progressBarEmptyStyle.Render(repeatChar('░', width-filled))

	percent := progressPercentStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))

	return bar + percent
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
