package process

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// InterpreterInfo describes a resolved analyzer interpreter.
type InterpreterInfo struct {
	// Path is the absolute path the executable resolved to.
	Path string

	// Version is the interpreter's self-reported version line,
	// e.g. "Python 3.12.4".
	Version string
}

// ProbeInterpreter resolves the executable on PATH and asks it for its
// version. Python prints the version banner to stdout on 3.x and to
// stderr on older interpreters, so both streams are captured.
func ProbeInterpreter(ctx context.Context, executable string) (*InterpreterInfo, error) {
	if executable == "" {
		executable = DefaultExecutable
	}

	path, err := exec.LookPath(executable)
	if err != nil {
		return nil, fmt.Errorf("interpreter %q not found: %w", executable, err)
	}

	cmd := exec.CommandContext(ctx, path, "--version")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("interpreter probe failed: %w", err)
	}

	return &InterpreterInfo{
		Path:    path,
		Version: strings.TrimSpace(string(out)),
	}, nil
}

// InterpreterAvailable reports whether the executable resolves on PATH.
func InterpreterAvailable(executable string) bool {
	if executable == "" {
		executable = DefaultExecutable
	}
	_, err := exec.LookPath(executable)
	return err == nil
}
