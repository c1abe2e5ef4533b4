package cli

import (
	"time"

	"github.com/rs/zerolog"

	"backupnow/internal/config"
)

// logConfigWarnings flags configuration combinations that run but
// probably do not do what the operator expects. All of them are
// advisory; none stop the daemon.
func logConfigWarnings(cfg config.Config, log zerolog.Logger) {
	if cfg.BackupRoot == "" {
		log.Warn().Msg("BACKUPNOW_BACKUP_ROOT is not set;" +
			" operations without an explicit destination will fail")
	}
	if !cfg.HistoryEnabled {
		log.Warn().Msg("BACKUPNOW_HISTORY=false;" +
			" runs leave no record and are invisible to the history command")
	}
	if cfg.CheckInterval > 24*time.Hour {
		log.Warn().Str("interval", cfg.CheckIntervalStr).
			Msg("BACKUPNOW_CHECK_INTERVAL is longer than a day; daily timers will fire late")
	}
	if cfg.CircuitBreakerThreshold == 0 {
		log.Info().Msg("CIRCUIT_BREAKER_THRESHOLD=0;" +
			" unreachable destinations are retried in full on every cycle")
	}
	if !cfg.MetricsEnabled {
		log.Info().Msg("METRICS_ENABLED is not set;" +
			" the daemon runs without status, health, or metrics endpoints")
	}
}
