package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/runner"
)

var (
	runTimeout  time.Duration
	runFullScan bool
	runEnv      []string
	runDir      string
)

var runCmd = &cobra.Command{
	Use:   "run <script> [args...]",
	Short: "Run one analyzer and print its result document",
	Long: `Run launches a single analyzer script under the configured
interpreter, waits for it to resolve, and prints the parsed result
document to stdout. Arguments after the script path are passed to the
script unchanged; the session summary goes to stderr.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := parseEnv(runEnv)
	if err != nil {
		return err
	}

	spec := process.NewSpec(cfg.Interpreter, args[0], args[1:]...)
	spec.Dir = runDir
	spec.Env = env
	spec.Timeout = cfg.TimeoutFor(runFullScan)
	if cmd.Flags().Changed("timeout") {
		spec.Timeout = runTimeout
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report *runner.Report
	runErr := sess.runWork(ctx, func(ctx context.Context) error {
		var err error
		report, err = sess.guard.Call(ctx, spec.Name(), spec, sess.run)
		return err
	})

	fmt.Fprint(os.Stderr, sess.close(flagMetricsDump))

	if runErr != nil {
		return runErr
	}

	os.Stdout.Write(report.Doc.Raw())
	fmt.Println()
	return nil
}

// parseEnv turns repeated KEY=VALUE flags into environment overrides.
func parseEnv(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid env override %q, want KEY=VALUE", pair)
		}
		env[k] = v
	}
	return env, nil
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "per-run deadline (overrides the configured timeouts)")
	runCmd.Flags().BoolVar(&runFullScan, "full-scan", false, "use the full-codebase scan timeout")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "KEY=VALUE environment override for the analyzer (repeatable)")
	runCmd.Flags().StringVar(&runDir, "dir", "", "working directory for the analyzer (default is the script's directory)")
	rootCmd.AddCommand(runCmd)
}
