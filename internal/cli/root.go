// Package cli implements the harness command line: run, batch,
// validate, and version. All commands share one layered configuration
// and one session composition.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-analysis-harness/internal/config"
)

// Flag values that overlay the loaded configuration. Only flags the
// user actually set are applied, so file and environment settings
// survive flag defaults.
var (
	flagConfig          string
	flagInterpreter     string
	flagScriptsRoot     string
	flagConcurrent      int
	flagQuickTimeout    time.Duration
	flagFullScanTimeout time.Duration
	flagGrace           time.Duration
	flagStaggerRate     int
	flagStaggerJitter   time.Duration
	flagProgressBuffer  int
	flagMetricsAddr     string
	flagMetricsDump     string
	flagTUI             bool
	flagLogFormat       string
	flagVerbose         bool
	flagSkipPreflight   bool
)

// cfg is the resolved configuration every subcommand runs with, built
// by the root command before any RunE fires.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "go-analysis-harness",
	Short: "Managed execution for external analyzer scripts",
	Long: `go-analysis-harness launches analyzer scripts as managed child
processes: concurrent identical invocations collapse to one child,
every process gets a lifetime deadline with a bounded termination
grace window, stdout is captured and parsed as a JSON result document
while recognized progress markers in the stream feed a live dashboard,
and stderr is collected for diagnostics.`,
	SilenceUsage: true,
}

// Assigned in init rather than in the rootCmd literal: the closure
// calls applyFlagOverrides, which reads rootCmd, and a package-level
// initializer may not depend on itself.
func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		applyFlagOverrides(loaded)
		if err := config.Validate(loaded); err != nil {
			return err
		}
		cfg = loaded
		return nil
	}
}

// applyFlagOverrides copies flag values the user set over the loaded
// configuration. Flags are the last layer, above file and environment.
func applyFlagOverrides(c *config.Config) {
	pf := rootCmd.PersistentFlags()
	if pf.Changed("interpreter") {
		c.Interpreter = flagInterpreter
	}
	if pf.Changed("scripts-root") {
		c.ScriptsRoot = flagScriptsRoot
	}
	if pf.Changed("concurrent") {
		c.Concurrent = flagConcurrent
	}
	if pf.Changed("quick-timeout") {
		c.QuickTimeout = config.Duration(flagQuickTimeout)
	}
	if pf.Changed("full-scan-timeout") {
		c.FullScanTimeout = config.Duration(flagFullScanTimeout)
	}
	if pf.Changed("grace") {
		c.GraceWindow = config.Duration(flagGrace)
	}
	if pf.Changed("stagger-rate") {
		c.StaggerRate = flagStaggerRate
	}
	if pf.Changed("stagger-jitter") {
		c.StaggerJitter = config.Duration(flagStaggerJitter)
	}
	if pf.Changed("progress-buffer") {
		c.ProgressBuffer = flagProgressBuffer
	}
	if pf.Changed("metrics-addr") {
		c.MetricsAddr = flagMetricsAddr
	}
	if pf.Changed("tui") {
		c.TUIEnabled = flagTUI
	}
	if pf.Changed("log-format") {
		c.LogFormat = flagLogFormat
	}
	if pf.Changed("verbose") {
		c.Verbose = flagVerbose
	}
	if pf.Changed("skip-preflight") {
		c.SkipPreflight = flagSkipPreflight
	}
}

func init() {
	d := config.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default is the user config dir)")
	pf.StringVar(&flagInterpreter, "interpreter", d.Interpreter, "interpreter binary for analyzer scripts")
	pf.StringVar(&flagScriptsRoot, "scripts-root", d.ScriptsRoot, "directory holding the analyzer scripts")
	pf.IntVar(&flagConcurrent, "concurrent", d.Concurrent, "maximum simultaneously running analyzers")
	pf.DurationVar(&flagQuickTimeout, "quick-timeout", time.Duration(d.QuickTimeout), "deadline for single-module analyses")
	pf.DurationVar(&flagFullScanTimeout, "full-scan-timeout", time.Duration(d.FullScanTimeout), "deadline for full-codebase scans")
	pf.DurationVar(&flagGrace, "grace", time.Duration(d.GraceWindow), "wait after the termination signal before giving up on a process")
	pf.IntVar(&flagStaggerRate, "stagger-rate", d.StaggerRate, "batch launches per second (0 launches all at once)")
	pf.DurationVar(&flagStaggerJitter, "stagger-jitter", time.Duration(d.StaggerJitter), "random jitter added to each staggered launch")
	pf.IntVar(&flagProgressBuffer, "progress-buffer", d.ProgressBuffer, "progress pipeline buffer size")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", d.MetricsAddr, "prometheus listen address (empty disables the server)")
	pf.StringVar(&flagMetricsDump, "metrics-dump", "", "write final metrics in text exposition format to this file")
	pf.BoolVar(&flagTUI, "tui", d.TUIEnabled, "show the live dashboard")
	pf.StringVar(&flagLogFormat, "log-format", d.LogFormat, "log format: text or json")
	pf.BoolVarP(&flagVerbose, "verbose", "v", d.Verbose, "debug logging, including analyzer stderr lines")
	pf.BoolVar(&flagSkipPreflight, "skip-preflight", d.SkipPreflight, "skip environment checks before batch runs")
}

func Execute() error {
	return rootCmd.Execute()
}
