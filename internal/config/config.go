// Package config provides configuration management for go-analysis-harness.
//
// Settings layer in a fixed order: built-in defaults, then an optional
// YAML file, then HARNESS_* environment variables, then command-line
// flags the user actually set. Later layers win.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files and environment
// variables can use "90s" / "2m" forms.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"90s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalText lets the environment layer parse duration values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config holds all configuration options for the harness.
type Config struct {
	// Analyzer
	Interpreter     string   `yaml:"interpreter" env:"INTERPRETER"`
	ScriptsRoot     string   `yaml:"scripts_root" env:"SCRIPTS_ROOT"`
	ExpectedScripts []string `yaml:"expected_scripts" env:"EXPECTED_SCRIPTS" envSeparator:","`

	// Timeouts
	QuickTimeout    Duration `yaml:"quick_timeout" env:"QUICK_TIMEOUT"`
	FullScanTimeout Duration `yaml:"full_scan_timeout" env:"FULL_SCAN_TIMEOUT"`
	GraceWindow     Duration `yaml:"grace_window" env:"GRACE_WINDOW"`

	// Batch orchestration
	Concurrent    int      `yaml:"concurrent" env:"CONCURRENT"`
	StaggerRate   int      `yaml:"stagger_rate" env:"STAGGER_RATE"` // starts per second, 0 = all at once
	StaggerJitter Duration `yaml:"stagger_jitter" env:"STAGGER_JITTER"`

	// Progress
	ProgressBuffer int `yaml:"progress_buffer" env:"PROGRESS_BUFFER"`

	// Observability
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"` // empty = disabled
	Verbose     bool   `yaml:"verbose" env:"VERBOSE"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT"` // json, text
	TUIEnabled  bool   `yaml:"tui" env:"TUI"`

	// Diagnostic modes
	SkipPreflight bool `yaml:"skip_preflight" env:"SKIP_PREFLIGHT"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Analyzer
		Interpreter: "python3",

		// Timeouts
		QuickTimeout:    Duration(60 * time.Second),
		FullScanTimeout: Duration(120 * time.Second),
		GraceWindow:     Duration(5 * time.Second),

		// Batch orchestration
		Concurrent:    4,
		StaggerRate:   0, // Start everything at once
		StaggerJitter: Duration(200 * time.Millisecond),

		// Progress
		ProgressBuffer: 256,

		// Observability
		MetricsAddr: "", // Disabled
		Verbose:     false,
		LogFormat:   "text",
		TUIEnabled:  false,
	}
}

// TimeoutFor returns the default run timeout. Full-codebase scans get
// the longer budget; a per-invocation timeout on the spec still wins.
func (c *Config) TimeoutFor(fullScan bool) time.Duration {
	if fullScan {
		return time.Duration(c.FullScanTimeout)
	}
	return time.Duration(c.QuickTimeout)
}
