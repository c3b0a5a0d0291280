package config

import (
	"errors"
	"fmt"
)

// Validate checks all configuration values and returns every error found
// joined together, so a user sees a complete report in one pass — the same
// accumulate-then-join approach the ambient config layer has always used.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	if s.StartupConflictPolicy != "" {
		switch StartupConflictPolicy(s.StartupConflictPolicy) {
		case PolicyRemoteWins, PolicyLocalWins, PolicyKeepBoth:
		default:
			errs = append(errs, fmt.Errorf(
				"sync.startup_conflict_policy: %q is not one of remote-wins, local-wins, keep-both",
				s.StartupConflictPolicy))
		}
	}

	if s.DebounceMillis < 0 {
		errs = append(errs, fmt.Errorf("sync.debounce_millis: must be >= 0, got %d", s.DebounceMillis))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: %q is not one of debug, info, warn, error", l.Level))
	}

	return errs
}
