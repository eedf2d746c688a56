package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/go-analysis-harness/internal/config"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
interpreter: python3.12
timeout: 90s
jobs:
  - script: analyzers/imports.py
    args: ["--format", "json"]
  - script: analyzers/deps.py
    dir: /srv/project
    timeout: 5m
    env:
      PYTHONPATH: /opt/lib
`))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}

	if m.Interpreter != "python3.12" {
		t.Errorf("Interpreter = %q", m.Interpreter)
	}
	if m.Timeout != config.Duration(90*time.Second) {
		t.Errorf("Timeout = %v, want 90s", m.Timeout)
	}
	if len(m.Jobs) != 2 {
		t.Fatalf("len(Jobs) = %d, want 2", len(m.Jobs))
	}

	if m.Jobs[0].Script != "analyzers/imports.py" {
		t.Errorf("Jobs[0].Script = %q", m.Jobs[0].Script)
	}
	if len(m.Jobs[0].Args) != 2 || m.Jobs[0].Args[0] != "--format" {
		t.Errorf("Jobs[0].Args = %v", m.Jobs[0].Args)
	}

	if m.Jobs[1].Dir != "/srv/project" {
		t.Errorf("Jobs[1].Dir = %q", m.Jobs[1].Dir)
	}
	if m.Jobs[1].Timeout != config.Duration(5*time.Minute) {
		t.Errorf("Jobs[1].Timeout = %v, want 5m", m.Jobs[1].Timeout)
	}
	if m.Jobs[1].Env["PYTHONPATH"] != "/opt/lib" {
		t.Errorf("Jobs[1].Env = %v", m.Jobs[1].Env)
	}
}

func TestParseManifest_NoJobs(t *testing.T) {
	_, err := ParseManifest([]byte("interpreter: python3\n"))
	if err == nil {
		t.Fatal("ParseManifest() accepted a manifest with no jobs")
	}
	if !strings.Contains(err.Error(), "no jobs") {
		t.Errorf("error = %q, want mention of missing jobs", err.Error())
	}
}

func TestParseManifest_JobWithoutCommand(t *testing.T) {
	_, err := ParseManifest([]byte(`
jobs:
  - script: analyzers/imports.py
  - dir: /srv/project
`))
	if err == nil {
		t.Fatal("ParseManifest() accepted a job with nothing to run")
	}
	if !strings.Contains(err.Error(), "job 2") {
		t.Errorf("error = %q, want the offending job number", err.Error())
	}
}

func TestParseManifest_BadYAML(t *testing.T) {
	if _, err := ParseManifest([]byte("jobs: [unclosed")); err == nil {
		t.Fatal("ParseManifest() accepted malformed YAML")
	}
}

func TestParseManifest_BadDuration(t *testing.T) {
	_, err := ParseManifest([]byte(`
timeout: ninety seconds
jobs:
  - script: a.py
`))
	if err == nil {
		t.Fatal("ParseManifest() accepted an unparseable duration")
	}
	if !strings.Contains(err.Error(), "duration") {
		t.Errorf("error = %q, want mention of the duration", err.Error())
	}
}

func TestManifest_Specs_InterpreterCascade(t *testing.T) {
	m := &Manifest{
		Interpreter: "python3.12",
		Jobs: []Job{
			{Script: "a.py", Interpreter: "pypy3"},
			{Script: "b.py"},
		},
	}

	specs := m.Specs("python3")
	if specs[0].Executable != "pypy3" {
		t.Errorf("specs[0].Executable = %q, job override must win", specs[0].Executable)
	}
	if specs[1].Executable != "python3.12" {
		t.Errorf("specs[1].Executable = %q, manifest interpreter must apply", specs[1].Executable)
	}

	// Without a manifest interpreter the harness-wide one applies.
	bare := &Manifest{Jobs: []Job{{Script: "c.py"}}}
	if got := bare.Specs("python3")[0].Executable; got != "python3" {
		t.Errorf("Executable = %q, want the harness default", got)
	}
}

func TestManifest_Specs_TimeoutCascade(t *testing.T) {
	m := &Manifest{
		Timeout: config.Duration(90 * time.Second),
		Jobs: []Job{
			{Script: "a.py", Timeout: config.Duration(5 * time.Minute)},
			{Script: "b.py"},
		},
	}

	specs := m.Specs("python3")
	if specs[0].Timeout != 5*time.Minute {
		t.Errorf("specs[0].Timeout = %v, job override must win", specs[0].Timeout)
	}
	if specs[1].Timeout != 90*time.Second {
		t.Errorf("specs[1].Timeout = %v, manifest timeout must apply", specs[1].Timeout)
	}

	// No timeouts anywhere leaves the spec at zero, which defers to
	// the runner's default.
	bare := &Manifest{Jobs: []Job{{Script: "c.py"}}}
	if got := bare.Specs("python3")[0].Timeout; got != 0 {
		t.Errorf("Timeout = %v, want 0", got)
	}
}

func TestManifest_Specs_CarriesJobFields(t *testing.T) {
	m := &Manifest{
		Jobs: []Job{{
			Script: "analyzers/deps.py",
			Args:   []string{"--deep", "--format", "json"},
			Dir:    "/srv/project",
			Env:    map[string]string{"PYTHONPATH": "/opt/lib"},
		}},
	}

	spec := m.Specs("python3")[0]
	if spec.Script != "analyzers/deps.py" {
		t.Errorf("Script = %q", spec.Script)
	}
	if len(spec.Args) != 3 || spec.Args[0] != "--deep" {
		t.Errorf("Args = %v", spec.Args)
	}
	if spec.Dir != "/srv/project" {
		t.Errorf("Dir = %q", spec.Dir)
	}
	if spec.Env["PYTHONPATH"] != "/opt/lib" {
		t.Errorf("Env = %v", spec.Env)
	}
}

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, `
jobs:
  - script: analyzers/imports.py
  - args: ["-c", "print('ok')"]
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if len(m.Jobs) != 2 {
		t.Errorf("len(Jobs) = %d, want 2", len(m.Jobs))
	}
	if m.Jobs[1].Script != "" || len(m.Jobs[1].Args) != 2 {
		t.Errorf("Jobs[1] = %+v, script-less args job should load", m.Jobs[1])
	}
}

func TestLoadManifest_MissingFile(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadManifest() did not report the missing file")
	}
}

func TestLoadManifest_ParseErrorNamesFile(t *testing.T) {
	path := writeManifest(t, "jobs: [unclosed")

	_, err := LoadManifest(path)
	if err == nil {
		t.Fatal("LoadManifest() accepted malformed YAML")
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error = %q, want the file path", err.Error())
	}
}
