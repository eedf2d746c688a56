package config

import (
	"errors"
	"fmt"
	"net"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Interpreter == "" {
		errs = append(errs, ValidationError{
			Field:   "interpreter",
			Message: "must not be empty",
		})
	}

	// Timeouts must be positive
	if cfg.QuickTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "quick_timeout",
			Message: "must be positive",
		})
	}
	if cfg.FullScanTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "full_scan_timeout",
			Message: "must be positive",
		})
	}
	if cfg.QuickTimeout > 0 && cfg.FullScanTimeout > 0 && cfg.FullScanTimeout < cfg.QuickTimeout {
		errs = append(errs, ValidationError{
			Field:   "full_scan_timeout",
			Message: "must be >= quick_timeout",
		})
	}
	if cfg.GraceWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace_window",
			Message: "must be positive",
		})
	}

	// Batch settings
	if cfg.Concurrent < 1 {
		errs = append(errs, ValidationError{
			Field:   "concurrent",
			Message: "must be at least 1",
		})
	}
	if cfg.StaggerRate < 0 {
		errs = append(errs, ValidationError{
			Field:   "stagger_rate",
			Message: "must not be negative (0 disables staggering)",
		})
	}
	if cfg.StaggerJitter < 0 {
		errs = append(errs, ValidationError{
			Field:   "stagger_jitter",
			Message: "must not be negative",
		})
	}

	if cfg.ProgressBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "progress_buffer",
			Message: "must be at least 1",
		})
	}

	// Metrics address must be host:port when set
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: fmt.Sprintf("must be host:port (got %q)", cfg.MetricsAddr),
			})
		}
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
