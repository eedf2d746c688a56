package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-analysis-harness/internal/preflight"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and the analyzer environment",
	Long: `Validate resolves the layered configuration and runs the preflight
checks: descriptor and process limits, interpreter availability, the
scripts root, and the expected analyzer scripts.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration:")
	fmt.Printf("  Interpreter:        %s\n", cfg.Interpreter)
	if cfg.ScriptsRoot != "" {
		fmt.Printf("  Scripts root:       %s\n", cfg.ScriptsRoot)
	}
	fmt.Printf("  Concurrent:         %d\n", cfg.Concurrent)
	fmt.Printf("  Quick timeout:      %s\n", cfg.QuickTimeout)
	fmt.Printf("  Full-scan timeout:  %s\n", cfg.FullScanTimeout)
	fmt.Printf("  Grace window:       %s\n", cfg.GraceWindow)
	fmt.Printf("  Progress buffer:    %d\n", cfg.ProgressBuffer)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:            %s\n", cfg.MetricsAddr)
	}
	fmt.Println()

	result := preflight.RunAll(cfg.Concurrent, cfg.Interpreter, cfg.ScriptsRoot, cfg.ExpectedScripts)
	preflight.PrintResults(result)
	if !result.Passed {
		return fmt.Errorf("preflight checks failed")
	}
	fmt.Println("Environment OK")
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
