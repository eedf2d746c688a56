// Package process describes external analyzer invocations and builds
// runnable commands from them.
package process

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultExecutable is the interpreter used when a Spec does not name one.
const DefaultExecutable = "python3"

// Spec describes a single external process launch: what to run, where,
// with which environment, and for how long. A Spec is built once per
// call and never mutated afterwards.
type Spec struct {
	// Executable is the interpreter or binary to launch.
	// Empty means DefaultExecutable.
	Executable string

	// Script is the analyzer script path, passed as the first argument.
	// Optional: when empty, the executable runs with Args alone.
	Script string

	// Args are the arguments following the script path.
	Args []string

	// Dir is the working directory. Empty means the script's containing
	// directory, or the inherited working directory when there is no script.
	Dir string

	// Env holds environment overrides merged over the inherited process
	// environment. Overrides win on key conflict.
	Env map[string]string

	// Timeout bounds the process lifetime. Zero means the caller's default.
	Timeout time.Duration
}

// NewSpec returns a Spec for running script under the given interpreter.
func NewSpec(executable, script string, args ...string) Spec {
	return Spec{
		Executable: executable,
		Script:     script,
		Args:       args,
	}
}

// Name returns a short human-readable name for the invocation, suitable
// for logs and as a logical operation key.
func (s Spec) Name() string {
	if s.Script != "" {
		return filepath.Base(s.Script)
	}
	return filepath.Base(s.executable())
}

func (s Spec) executable() string {
	if s.Executable == "" {
		return DefaultExecutable
	}
	return s.Executable
}

// Argv returns the argument vector passed after the executable:
// the script path (when set) followed by the remaining arguments.
func (s Spec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	if s.Script != "" {
		argv = append(argv, s.Script)
	}
	return append(argv, s.Args...)
}

// WorkDir returns the effective working directory for the process.
func (s Spec) WorkDir() string {
	if s.Dir != "" {
		return s.Dir
	}
	if s.Script != "" {
		return filepath.Dir(s.Script)
	}
	return ""
}

// CommandString returns the command line that would be executed (for debugging).
func (s Spec) CommandString() string {
	return s.executable() + " " + strings.Join(s.Argv(), " ")
}

// Fingerprint returns a stable identity for the operation this Spec
// performs. Two specs that differ only in the listing order of their
// arguments or environment overrides fingerprint identically. The
// timeout is excluded: it shapes how long a run may take, not what the
// run does.
func (s Spec) Fingerprint() string {
	argv := s.Argv()
	args := make([]string, len(argv))
	copy(args, argv)
	sort.Strings(args)

	env := make([]string, 0, len(s.Env))
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	h := sha256.New()
	io.WriteString(h, s.executable())
	h.Write([]byte{0})
	io.WriteString(h, s.WorkDir())
	h.Write([]byte{0})
	for _, a := range args {
		io.WriteString(h, a)
		h.Write([]byte{0x1f})
	}
	h.Write([]byte{0})
	for _, e := range env {
		io.WriteString(h, e)
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}
