// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-analysis-harness/internal/process"
)

// Note: syscall.RLIMIT_NPROC is not exported in Go's syscall package,
// so we read process limits from /proc/self/limits instead.

// probeTimeout bounds the interpreter version probe.
const probeTimeout = 5 * time.Second

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks. concurrent is the number of
// analyzer processes that may run at once; expected lists the script
// names that must exist under scriptsRoot.
func RunAll(concurrent int, interpreter, scriptsRoot string, expected []string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	// File descriptor check
	fdCheck := checkFileDescriptors(concurrent)
	result.Checks = append(result.Checks, fdCheck)
	if !fdCheck.Passed {
		result.Passed = false
	}

	// Process limit check
	procCheck := checkProcessLimit(concurrent)
	result.Checks = append(result.Checks, procCheck)
	if !procCheck.Passed {
		result.Passed = false
	}

	// Interpreter check
	interpCheck := checkInterpreter(interpreter)
	result.Checks = append(result.Checks, interpCheck)
	if !interpCheck.Passed {
		result.Passed = false
	}

	// Scripts root check
	rootCheck := checkScriptsRoot(scriptsRoot)
	result.Checks = append(result.Checks, rootCheck)
	if !rootCheck.Passed {
		result.Passed = false
	}

	// Expected analyzer scripts (only meaningful with a valid root)
	if rootCheck.Passed {
		scriptsCheck := checkAnalyzerScripts(scriptsRoot, expected)
		result.Checks = append(result.Checks, scriptsCheck)
		if !scriptsCheck.Passed {
			result.Passed = false
		}
	}

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(concurrent int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	// Each run holds two pipes (both ends during setup), plus
	// harness overhead (metrics listener, logging, sockets).
	required := concurrent*8 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d concurrent runs)", actual, required, concurrent),
	}
}

// checkProcessLimit verifies sufficient process slots are available.
func checkProcessLimit(concurrent int) Check {
	// Interpreters may fork helpers, so leave headroom beyond one
	// slot per run.
	required := concurrent*2 + 50

	// Read soft limit from /proc/self/limits
	data, err := os.ReadFile("/proc/self/limits")
	if err != nil {
		// Non-Linux or restricted access, assume OK
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	// Parse "Max processes" line
	actual := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "Max processes") {
			fields := strings.Fields(line)
			if len(fields) >= 4 {
				if fields[3] == "unlimited" {
					actual = 1000000
				} else {
					fmt.Sscanf(fields[3], "%d", &actual)
				}
			}
			break
		}
	}

	if actual == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// checkInterpreter verifies the analyzer interpreter is available and
// answers a version probe.
func checkInterpreter(interpreter string) Check {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	info, err := process.ProbeInterpreter(ctx, interpreter)
	if err != nil {
		return Check{
			Name:    "interpreter",
			Passed:  false,
			Message: err.Error(),
		}
	}

	return Check{
		Name:    "interpreter",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%s)", info.Path, info.Version),
	}
}

// checkScriptsRoot verifies the analyzer script directory exists.
func checkScriptsRoot(root string) Check {
	if root == "" {
		return Check{
			Name:    "scripts_root",
			Passed:  true,
			Warning: true,
			Message: "not configured (scripts resolved per invocation)",
		}
	}

	info, err := os.Stat(root)
	if err != nil {
		return Check{
			Name:    "scripts_root",
			Passed:  false,
			Message: fmt.Sprintf("cannot access %s: %v", root, err),
		}
	}
	if !info.IsDir() {
		return Check{
			Name:    "scripts_root",
			Passed:  false,
			Message: fmt.Sprintf("%s is not a directory", root),
		}
	}

	return Check{
		Name:    "scripts_root",
		Passed:  true,
		Message: root,
	}
}

// checkAnalyzerScripts verifies the expected scripts exist under root.
// The stat calls run concurrently; a missing subset fails the check and
// is listed by name.
func checkAnalyzerScripts(root string, expected []string) Check {
	if len(expected) == 0 {
		return Check{
			Name:    "analyzer_scripts",
			Passed:  true,
			Warning: true,
			Message: "no expected scripts configured",
		}
	}

	var (
		mu      sync.Mutex
		missing []string
	)

	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, name := range expected {
		g.Go(func() error {
			if _, err := os.Stat(filepath.Join(root, name)); err != nil {
				mu.Lock()
				missing = append(missing, name)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if len(missing) > 0 {
		sort.Strings(missing)
		return Check{
			Name:    "analyzer_scripts",
			Passed:  false,
			Message: fmt.Sprintf("missing %d of %d: %s", len(missing), len(expected), strings.Join(missing, ", ")),
		}
	}

	return Check{
		Name:    "analyzer_scripts",
		Passed:  true,
		Message: fmt.Sprintf("all %d present under %s", len(expected), root),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 4096 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "interpreter":
		return "install python3 (apt install python3 / brew install python3) or set analyzer.interpreter"
	case "scripts_root":
		return "create the directory or set analyzer.scripts_root"
	case "analyzer_scripts":
		return "restore the missing scripts or trim analyzer.expected_scripts"
	default:
		return "see documentation"
	}
}
