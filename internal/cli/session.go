package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-analysis-harness/internal/config"
	"github.com/randomizedcoder/go-analysis-harness/internal/guard"
	"github.com/randomizedcoder/go-analysis-harness/internal/logging"
	"github.com/randomizedcoder/go-analysis-harness/internal/metrics"
	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/progress"
	"github.com/randomizedcoder/go-analysis-harness/internal/registry"
	"github.com/randomizedcoder/go-analysis-harness/internal/runner"
	"github.com/randomizedcoder/go-analysis-harness/internal/stats"
	"github.com/randomizedcoder/go-analysis-harness/internal/timeseries"
	"github.com/randomizedcoder/go-analysis-harness/internal/tui"
	"github.com/randomizedcoder/go-analysis-harness/internal/version"
)

// session wires the harness collaborators for one command invocation:
// logger, registry, runner, call guard, stats aggregator, stderr
// reporter, progress pipeline, metrics, and optionally the dashboard.
type session struct {
	cfg *config.Config
	log *slog.Logger

	reg      *registry.Registry
	runner   *runner.Runner
	guard    *guard.Guard
	agg      *stats.Aggregator
	reporter *logging.Reporter
	pipeline *progress.Pipeline

	collector *metrics.Collector
	server    *metrics.Server

	completionRate *timeseries.RateTracker
	progressRate   *timeseries.RateTracker

	program *tea.Program

	sampleStop chan struct{}
	sampleDone chan struct{}
	drainDone  chan struct{}
}

// newSession builds the collaborators and starts the background loops.
// The caller must finish with close, even when the work fails.
func newSession(cfg *config.Config) (*session, error) {
	s := &session{
		cfg:        cfg,
		sampleStop: make(chan struct{}),
		sampleDone: make(chan struct{}),
		drainDone:  make(chan struct{}),
	}

	// The dashboard owns the terminal, so log output is discarded
	// while it runs.
	logOpts := logging.Options{
		Format:  cfg.LogFormat,
		Level:   "info",
		Verbose: cfg.Verbose,
	}
	if cfg.TUIEnabled {
		logOpts.Format = "json"
		logOpts.Writer = io.Discard
	}
	s.log = logging.New(logOpts)
	logging.SetDefault(s.log)

	s.reporter = logging.NewReporter(s.log, cfg.Verbose)
	s.agg = stats.NewAggregator()
	s.reg = registry.New()
	s.pipeline = progress.NewPipeline(cfg.ProgressBuffer)
	s.completionRate = timeseries.NewRateTracker()
	s.progressRate = timeseries.NewRateTracker()

	s.collector = metrics.NewCollector(metrics.CollectorConfig{
		Version:     version.Version,
		Interpreter: cfg.Interpreter,
		Concurrent:  cfg.Concurrent,
	})

	s.runner = runner.New(runner.Config{
		Registry:       s.reg,
		Logger:         s.log,
		DefaultTimeout: time.Duration(cfg.QuickTimeout),
		Grace:          time.Duration(cfg.GraceWindow),
		Progress:       s.pipeline,
		Callbacks: runner.Callbacks{
			OnStart:       s.onStart,
			OnExit:        s.onExit,
			OnStderrChunk: s.reporter.Feed,
		},
	})
	s.guard = guard.New(s.log)

	if cfg.TUIEnabled {
		model := tui.New(tui.Config{
			Interpreter:    cfg.Interpreter,
			MetricsAddr:    cfg.MetricsAddr,
			Concurrent:     cfg.Concurrent,
			StatsSource:    s.agg,
			Diagnostics:    s.reporter,
			Pipeline:       s.pipeline,
			CompletionRate: s.completionRate,
			ProgressRate:   s.progressRate,
		})
		s.program = tea.NewProgram(model, tea.WithAltScreen())
	}

	if cfg.MetricsAddr != "" {
		s.server = metrics.NewServer(cfg.MetricsAddr, s.log, prometheus.DefaultGatherer)
		if err := s.server.Start(); err != nil {
			return nil, fmt.Errorf("starting metrics server: %w", err)
		}
	}

	go s.drainProgress()
	go s.sampleLoop()

	return s, nil
}

// onStart mirrors a freshly spawned process into the session stats.
func (s *session) onStart(processID string, pid int) {
	analyzer := "unknown"
	if h, ok := s.reg.Get(processID); ok {
		analyzer = h.Spec.Name()
	}
	s.agg.RunStarted(processID, analyzer)
	s.collector.RunStarted()
}

func (s *session) onExit(processID string, cause registry.Cause, exitCode int, elapsed time.Duration) {
	// Surface any buffered partial stderr line before the run resolves.
	s.reporter.Flush(processID)
}

// run executes one spec through the runner and folds the outcome into
// the session accounting. The guard calls this at most once per
// distinct in-flight invocation; attached callers share the result
// without touching the counters again.
func (s *session) run(ctx context.Context, spec process.Spec) (*runner.Report, error) {
	report, err := s.runner.Run(ctx, spec)

	if err == nil {
		s.agg.RecordRun(stats.Record{
			ProcessID:   report.ProcessID,
			Analyzer:    spec.Name(),
			Result:      stats.ResultReport,
			Elapsed:     report.Elapsed,
			StdoutBytes: report.StdoutBytes,
			StderrBytes: len(report.Stderr),
		})
		s.collector.RecordRun(metrics.RunOutcome{
			Result:      stats.ResultReport,
			Spawned:     true,
			Elapsed:     report.Elapsed,
			StdoutBytes: report.StdoutBytes,
			StderrBytes: len(report.Stderr),
		})
		s.completionRate.Add(1)
		return report, nil
	}

	rec := stats.Record{Analyzer: spec.Name(), Result: "error", ExitCode: -1}
	out := metrics.RunOutcome{Result: "error"}
	if ee, ok := runner.AsExecError(err); ok {
		spawned := ee.ProcessID != ""
		rec.ProcessID = ee.ProcessID
		rec.Result = ee.Kind.String()
		rec.ExitCode = ee.ExitCode
		rec.Elapsed = ee.Elapsed
		rec.StderrBytes = len(ee.Stderr)
		rec.SlowShutdown = spawned && ee.ExitCode == -1

		out.Result = rec.Result
		out.Spawned = spawned
		out.Elapsed = ee.Elapsed
		out.StderrBytes = len(ee.Stderr)
		out.SlowShutdown = rec.SlowShutdown
	}
	s.agg.RecordRun(rec)
	s.collector.RecordRun(out)
	s.completionRate.Add(1)
	return report, err
}

// runWork executes work under the session. With the dashboard enabled
// the work runs in the background while the dashboard owns the
// terminal; quitting the dashboard cancels the remaining work.
func (s *session) runWork(ctx context.Context, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.program == nil {
		return work(ctx)
	}

	done := make(chan error, 1)
	go func() {
		err := work(ctx)
		tui.SendQuit(s.program)
		done <- err
	}()

	if _, err := s.program.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
	}
	cancel()
	return <-done
}

// drainProgress consumes the pipeline and fans updates out to the
// aggregator, the metrics collector, the rate tracker, and the
// dashboard.
func (s *session) drainProgress() {
	defer close(s.drainDone)
	for u := range s.pipeline.Updates() {
		s.agg.Progress(u.ProcessID, u.Event.Message, u.Event.Increment)
		s.collector.RecordProgress(u.Event.Marker.String())
		s.progressRate.Add(1)

		if s.program != nil {
			analyzer := u.ProcessID
			if h, ok := s.reg.Get(u.ProcessID); ok {
				analyzer = h.Spec.Name()
			}
			tui.SendProgress(s.program, analyzer, u.Event.Message, u.Event.Increment)
		}
	}
}

// sampleLoop refreshes rate samples and session gauges once a second
// and pushes a stats snapshot to the dashboard.
func (s *session) sampleLoop() {
	defer close(s.sampleDone)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.sampleStop:
			return
		case <-ticker.C:
			s.completionRate.RecordSample()
			s.progressRate.RecordSample()
			s.recordSession()
			if s.program != nil {
				tui.SendStats(s.program, s.agg.Snapshot())
			}
		}
	}
}

// recordSession refreshes the guard and pipeline gauges.
func (s *session) recordSession() {
	calls, executions, attached := s.guard.Stats()
	_, dropped := s.pipeline.Stats()
	s.collector.RecordSession(metrics.SessionUpdate{
		GuardCalls:      calls,
		GuardExecutions: executions,
		GuardAttached:   attached,
		ProgressDropped: dropped,
	})
}

// close stops the background loops, shuts the metrics surface down,
// and returns the exit summary. Callers must not start new work after
// calling close; the progress pipeline is gone.
func (s *session) close(dumpPath string) string {
	close(s.sampleStop)
	<-s.sampleDone

	// Every run has resolved by now, so nothing publishes anymore.
	s.pipeline.Close()
	<-s.drainDone

	s.recordSession()

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Error("metrics_shutdown_failed", "error", err)
		}
		cancel()
	}

	if dumpPath != "" {
		if err := metrics.DumpFile(dumpPath, prometheus.DefaultGatherer); err != nil {
			fmt.Fprintf(os.Stderr, "metrics dump failed: %v\n", err)
		} else {
			s.log.Info("metrics_dumped", "path", dumpPath)
		}
	}

	calls, executions, attached := s.guard.Stats()
	published, dropped := s.pipeline.Stats()
	return stats.FormatExitSummary(s.agg.Snapshot(), stats.SummaryConfig{
		Interpreter:     s.cfg.Interpreter,
		Concurrent:      s.cfg.Concurrent,
		MetricsAddr:     s.cfg.MetricsAddr,
		GuardCalls:      calls,
		GuardExecutions: executions,
		GuardAttached:   attached,
		ProgressEvents:  published,
		ProgressDropped: dropped,
		ErrorPatterns:   s.reporter.CountErrors(),
	})
}
