package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-analysis-harness/internal/orchestrator"
	"github.com/randomizedcoder/go-analysis-harness/internal/preflight"
	"github.com/randomizedcoder/go-analysis-harness/internal/process"
	"github.com/randomizedcoder/go-analysis-harness/internal/version"
)

var (
	batchManifest string
	batchFullScan bool
)

var batchCmd = &cobra.Command{
	Use:   "batch [script...]",
	Short: "Run a set of analyzers with bounded parallelism",
	Long: `Batch runs every listed script through the call guard, with at most
--concurrent analyzers executing at once. Scripts come from the
arguments or from a YAML manifest. Identical in-flight invocations
collapse to a single child process whose result every entry shares.`,
	Args: cobra.ArbitraryArgs,
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	specs, err := batchSpecs(args)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return fmt.Errorf("nothing to run: pass script paths or --manifest")
	}

	if !cfg.TUIEnabled {
		printBanner()
	}

	if !cfg.SkipPreflight {
		result := preflight.RunAll(cfg.Concurrent, cfg.Interpreter, cfg.ScriptsRoot, cfg.ExpectedScripts)
		preflight.PrintResults(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed")
		}
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}

	var stagger *orchestrator.Stagger
	if cfg.StaggerRate > 0 {
		stagger = orchestrator.NewStagger(cfg.StaggerRate, time.Duration(cfg.StaggerJitter))
	}

	orch := orchestrator.New(orchestrator.Config{
		Guard:      sess.guard,
		Run:        sess.run,
		Logger:     sess.log,
		Concurrent: cfg.Concurrent,
		Stagger:    stagger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outcomes []orchestrator.Outcome
	runErr := sess.runWork(ctx, func(ctx context.Context) error {
		var err error
		outcomes, err = orch.Run(ctx, specs)
		return err
	})

	printOutcomes(outcomes)
	fmt.Print(sess.close(flagMetricsDump))

	if runErr != nil {
		return fmt.Errorf("batch interrupted: %w", runErr)
	}

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
	}
	return nil
}

// batchSpecs builds the batch from the manifest or from the script
// arguments. Entries without their own timeout get the configured
// default.
func batchSpecs(args []string) ([]process.Spec, error) {
	if batchManifest != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("pass scripts or --manifest, not both")
		}
		m, err := orchestrator.LoadManifest(batchManifest)
		if err != nil {
			return nil, err
		}
		specs := m.Specs(cfg.Interpreter)
		for i := range specs {
			if specs[i].Timeout == 0 {
				specs[i].Timeout = cfg.TimeoutFor(batchFullScan)
			}
		}
		return specs, nil
	}

	specs := make([]process.Spec, 0, len(args))
	for _, script := range args {
		spec := process.NewSpec(cfg.Interpreter, script)
		spec.Timeout = cfg.TimeoutFor(batchFullScan)
		specs = append(specs, spec)
	}
	return specs, nil
}

// printOutcomes writes one line per batch entry in submission order.
func printOutcomes(outcomes []orchestrator.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	fmt.Println("Batch results:")
	for _, o := range outcomes {
		if o.Succeeded() {
			fmt.Printf("  ok      %-32s %8s  %d bytes\n",
				o.Spec.Name(), o.Report.Elapsed.Round(time.Millisecond), o.Report.StdoutBytes)
			continue
		}
		fmt.Printf("  %-7s %-32s %v\n", o.Result(), o.Spec.Name(), o.Err)
	}
	fmt.Println()
}

// printBanner prints the startup banner.
func printBanner() {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       go-analysis-harness                         ║")
	fmt.Println("║        Managed Execution for External Analyzer Processes          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("Version:     %s\n", version.Version)
	fmt.Printf("Interpreter: %s\n", cfg.Interpreter)
	fmt.Printf("Concurrent:  %d\n", cfg.Concurrent)
	if cfg.MetricsAddr != "" {
		fmt.Printf("Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
}

func init() {
	batchCmd.Flags().StringVar(&batchManifest, "manifest", "", "YAML manifest describing the batch")
	batchCmd.Flags().BoolVar(&batchFullScan, "full-scan", false, "use the full-codebase scan timeout for entries without their own")
	rootCmd.AddCommand(batchCmd)
}
