package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	errs = appendDurationErrors(errs, "BACKUPNOW_CHECK_INTERVAL", cfg.CheckIntervalStr)
	errs = appendDurationErrors(errs, "BACKUPNOW_HISTORY_RETENTION", cfg.HistoryRetentionStr)
	errs = appendDurationErrors(errs, "BACKUPNOW_STOP_MAX_WAIT", cfg.StopMaxWaitStr)
	errs = appendDurationErrors(errs, "CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr)

	if cfg.HistoryEnabled && cfg.HistoryPath == "" {
		errs = append(errs, ValidationError{
			Field:   "BACKUPNOW_HISTORY_PATH",
			Message: "required when history is enabled and no data directory is resolvable",
		})
	}

	if cfg.MetricsEnabled && (cfg.MetricsPath == "" || cfg.MetricsPath[0] != '/') {
		errs = append(errs, ValidationError{
			Field:   "METRICS_PATH",
			Message: fmt.Sprintf("must start with '/', got %q", cfg.MetricsPath),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func appendDurationErrors(errs ValidationErrors, field, value string) ValidationErrors {
	if value == "" {
		return errs
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid duration: %v", err),
		})
	}
	if d <= 0 {
		return append(errs, ValidationError{
			Field:   field,
			Message: "must be positive",
		})
	}
	return errs
}
