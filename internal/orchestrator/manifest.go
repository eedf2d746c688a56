package orchestrator

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-analysis-harness/internal/config"
	"github.com/randomizedcoder/go-analysis-harness/internal/process"
)

// Manifest describes a batch of analyzer invocations, usually loaded
// from a YAML file:
//
//	interpreter: python3
//	timeout: 90s
//	jobs:
//	  - script: analyzers/imports.py
//	    args: ["--format", "json"]
//	  - script: analyzers/deps.py
//	    timeout: 5m
type Manifest struct {
	// Interpreter applies to jobs that do not name their own. Empty
	// falls through to the harness-wide interpreter.
	Interpreter string `yaml:"interpreter"`

	// Timeout applies to jobs that do not carry their own. Zero falls
	// through to the harness default.
	Timeout config.Duration `yaml:"timeout"`

	Jobs []Job `yaml:"jobs"`
}

// Job is one entry in a batch manifest.
type Job struct {
	// Script is the analyzer script path, run as the first argument.
	Script string `yaml:"script"`

	// Args follow the script path on the command line.
	Args []string `yaml:"args"`

	// Dir overrides the working directory.
	Dir string `yaml:"dir"`

	// Env holds environment overrides for this job.
	Env map[string]string `yaml:"env"`

	// Interpreter overrides the manifest interpreter.
	Interpreter string `yaml:"interpreter"`

	// Timeout overrides the manifest timeout.
	Timeout config.Duration `yaml:"timeout"`
}

// LoadManifest reads and validates a batch manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return m, nil
}

// ParseManifest parses and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Jobs) == 0 {
		return fmt.Errorf("manifest lists no jobs")
	}
	for i, j := range m.Jobs {
		if j.Script == "" && len(j.Args) == 0 {
			return fmt.Errorf("job %d has neither script nor args", i+1)
		}
	}
	return nil
}

// Specs expands the manifest into runnable invocations. The
// interpreter argument is the harness-wide default, used when neither
// the job nor the manifest names one.
func (m *Manifest) Specs(interpreter string) []process.Spec {
	specs := make([]process.Spec, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		exe := j.Interpreter
		if exe == "" {
			exe = m.Interpreter
		}
		if exe == "" {
			exe = interpreter
		}

		timeout := j.Timeout
		if timeout == 0 {
			timeout = m.Timeout
		}

		specs = append(specs, process.Spec{
			Executable: exe,
			Script:     j.Script,
			Args:       j.Args,
			Dir:        j.Dir,
			Env:        j.Env,
			Timeout:    time.Duration(timeout),
		})
	}
	return specs
}
