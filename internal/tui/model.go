package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-analysis-harness/internal/logging"
	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
	"github.com/randomizedcoder/go-analysis-harness/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// StatsMsg carries an updated session snapshot.
type StatsMsg struct {
	Stats *stats.SessionStats
}

// ProgressMsg carries one translated progress event for the feed.
type ProgressMsg struct {
	Analyzer  string
	Message   string
	Increment int
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Sources
// =============================================================================

// StatsSource provides session snapshots.
type StatsSource interface {
	Snapshot() *stats.SessionStats
}

// DiagnosticsSource provides recent analyzer stderr lines and failure
// pattern counts. This is optional; if not provided, the stderr view
// shows a placeholder.
type DiagnosticsSource interface {
	RecentLines(n int) []logging.Line
	CountErrors() map[string]int
}

// PipelineSource provides progress pipeline delivery counters.
type PipelineSource interface {
	Stats() (published, dropped int64)
}

// =============================================================================
// Model
// =============================================================================

// progressLogSize bounds the progress feed ring.
const progressLogSize = 8

// progressEntry is one row of the progress feed.
type progressEntry struct {
	at        time.Time
	analyzer  string
	message   string
	increment int
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	interpreter string
	metricsAddr string
	concurrent  int

	// Current state
	stats       *stats.SessionStats
	progressLog []progressEntry
	startTime   time.Time
	lastUpdate  time.Time
	showStderr  bool

	// Display options
	width  int
	height int

	// Data sources (for fetching updates)
	statsSource StatsSource
	diagnostics DiagnosticsSource
	pipeline    PipelineSource

	// Rolling rate trackers (optional)
	completionRate *timeseries.RateTracker
	progressRate   *timeseries.RateTracker

	// Widgets
	spinner spinner.Model
	bar     progress.Model

	// Quit flag
	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Interpreter    string
	MetricsAddr    string
	Concurrent     int
	StatsSource    StatsSource
	Diagnostics    DiagnosticsSource
	Pipeline       PipelineSource
	CompletionRate *timeseries.RateTracker
	ProgressRate   *timeseries.RateTracker
}

// New creates a new TUI model.
func New(cfg Config) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorSecondary)

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = 24

	return Model{
		interpreter:    cfg.Interpreter,
		metricsAddr:    cfg.MetricsAddr,
		concurrent:     cfg.Concurrent,
		statsSource:    cfg.StatsSource,
		diagnostics:    cfg.Diagnostics,
		pipeline:       cfg.Pipeline,
		completionRate: cfg.CompletionRate,
		progressRate:   cfg.ProgressRate,
		startTime:      time.Now(),
		lastUpdate:     time.Now(),
		width:          80,
		height:         24,
		spinner:        s,
		bar:            bar,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// Note: tea.WithAltScreen() is passed when creating the program,
	// so we don't need tea.EnterAltScreen here.
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.showStderr = !m.showStderr
			return m, nil
		case "r":
			// Force refresh
			return m, tickCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = barWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		// Fetch latest session snapshot
		if m.statsSource != nil {
			m.stats = m.statsSource.Snapshot()
		}
		m.lastUpdate = time.Now()
		return m, tickCmd()

	case StatsMsg:
		m.stats = msg.Stats
		m.lastUpdate = time.Now()
		return m, nil

	case ProgressMsg:
		m.progressLog = append(m.progressLog, progressEntry{
			at:        time.Now(),
			analyzer:  msg.Analyzer,
			message:   msg.Message,
			increment: msg.Increment,
		})
		if len(m.progressLog) > progressLogSize {
			m.progressLog = m.progressLog[len(m.progressLog)-progressLogSize:]
		}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.showStderr {
		return m.renderStderrView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// barWidth sizes the per-run progress bars to the terminal width.
func barWidth(termWidth int) int {
	w := termWidth / 3
	if w < 10 {
		w = 10
	}
	if w > 40 {
		w = 40
	}
	return w
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the session started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// ActiveCount returns the number of in-flight analyzer runs.
func (m Model) ActiveCount() int {
	if m.stats == nil {
		return 0
	}
	return len(m.stats.ActiveRuns)
}

// CompletedCount returns the number of resolved runs.
func (m Model) CompletedCount() int64 {
	if m.stats == nil {
		return 0
	}
	return m.stats.TotalCompleted
}

// SuccessRate returns the fraction of completed runs that produced a
// report.
func (m Model) SuccessRate() float64 {
	if m.stats == nil {
		return 0
	}
	return m.stats.SuccessRate()
}

// DropRate returns the current progress pipeline drop rate.
func (m Model) DropRate() float64 {
	if m.pipeline == nil {
		return 0
	}
	published, dropped := m.pipeline.Stats()
	offered := published + dropped
	if offered == 0 {
		return 0
	}
	return float64(dropped) / float64(offered)
}

// =============================================================================
// Helpers for external use
// =============================================================================

// SendStats sends a session snapshot to the TUI.
func SendStats(p *tea.Program, stats *stats.SessionStats) {
	if p != nil {
		p.Send(StatsMsg{Stats: stats})
	}
}

// SendProgress sends a progress event to the TUI feed.
func SendProgress(p *tea.Program, analyzer, message string, increment int) {
	if p != nil {
		p.Send(ProgressMsg{Analyzer: analyzer, Message: message, Increment: increment})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatPercent formats a fraction as a percentage.
func formatPercent(value float64) string {
	return fmt.Sprintf("%.1f%%", value*100)
}

// shortID returns the leading segment of a process ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
