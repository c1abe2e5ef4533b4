package cli

import (
	"fmt"

	"github.com/rs/zerolog"

	"backupnow/internal/circuitbreaker"
	"backupnow/internal/config"
	"backupnow/internal/coordinator"
	"backupnow/internal/core"
	"backupnow/internal/history"
	"backupnow/internal/metrics"
	"backupnow/internal/runner"
)

// app is the wired component graph one command run works with. The
// history store and metrics sink stay nil until a command opts in.
type app struct {
	cfg     config.Config
	log     zerolog.Logger
	run     *runner.Runner
	breaker *circuitbreaker.CircuitBreaker // nil when disabled
	coord   *coordinator.Coordinator
	core    *core.Core
	store   *history.Store          // nil until openHistory
	sink    *metrics.PrometheusSink // nil unless the daemon enables it
}

// newApp loads and validates configuration and wires backend,
// coordinator, and core. The settings document is not read yet;
// callers run start when they need it.
func newApp(opts *rootOptions) (*app, error) {
	log := opts.logger()
	cfg := config.Load()
	if err := config.Validate(cfg); err != nil {
		return nil, exitWith(ExitInvalidConfig, err)
	}

	a := &app{cfg: cfg, log: log}

	if cfg.CircuitBreakerThreshold > 0 {
		a.breaker = circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	}

	a.run = runner.New(log).WithConcurrency(cfg.CopyWorkers)
	if cfg.BackupRoot != "" {
		a.run = a.run.WithDefaultRoot(cfg.BackupRoot)
	}
	if a.breaker != nil {
		a.run = a.run.WithBreaker(a.breaker)
	}

	a.coord = coordinator.New(a.run, log)
	a.core = core.New(a.coord, log).WithSettingsOverride(cfg.SettingsPath)
	return a, nil
}

// openHistory opens the run-history store when history is enabled.
// Commands that never record runs skip this.
func (a *app) openHistory() error {
	if !a.cfg.HistoryEnabled {
		a.log.Debug().Msg("history disabled; runs will not be recorded")
		return nil
	}
	store, err := history.Open(a.cfg.HistoryPath, a.log)
	if err != nil {
		return exitWith(ExitRuntimeError, fmt.Errorf("opening history: %w", err))
	}
	a.store = store
	a.core.WithHistory(store)
	return nil
}

// start loads the settings document and logs accumulated validation
// problems without failing the run.
func (a *app) start() error {
	errs, err := a.core.Start()
	if err != nil {
		return exitWith(ExitInvalidConfig, err)
	}
	for _, e := range errs {
		a.log.Error().Msg(e.Error())
	}
	return nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Error().Err(err).Msg("closing history store")
		}
	}
}
