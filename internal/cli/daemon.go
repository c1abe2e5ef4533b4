package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"backupnow/internal/api"
	"backupnow/internal/domain"
	"backupnow/internal/history"
	"backupnow/internal/lockfile"
	"backupnow/internal/metrics"
	"backupnow/internal/schedule"
	"backupnow/internal/sysdirs"
)

const (
	httpShutdownTimeout = 10 * time.Second

	// wakeRateInterval caps how often settings edits may trigger an
	// early cycle; a busy editor falls back to the regular interval.
	wakeRateInterval = 30 * time.Second
)

func newDaemonCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run check cycles on an interval until signalled",
		Long: `daemon holds the instance lock and runs a check cycle every
BACKUPNOW_CHECK_INTERVAL, waking early when the settings file changes
on disk. SIGINT or SIGTERM stops it; jobs already running are given
BACKUPNOW_STOP_MAX_WAIT to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts)
		},
	}
}

// timerView is the timer snapshot the status endpoint reads. The
// schedule registry itself belongs to the check loop; the daemon
// rebuilds this copy after startup and after every cycle so HTTP
// handlers never touch live registry state.
type timerView struct {
	mu     sync.Mutex
	timers []*domain.Timer
}

func (v *timerView) refresh(reg *schedule.Registry) {
	fresh := make([]*domain.Timer, 0, reg.Len())
	for _, t := range reg.Timers() {
		commands := append([]string(nil), t.Commands...)
		clone, err := domain.NewTimer(t.Name, t.TimeOfDay, t.Span, commands, t.Enabled, t.Ran)
		if err != nil {
			// Registry timers already passed NewTimer once.
			continue
		}
		fresh = append(fresh, clone)
	}
	v.mu.Lock()
	v.timers = fresh
	v.mu.Unlock()
}

func (v *timerView) Timers() []*domain.Timer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timers
}

func runDaemon(opts *rootOptions) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	logConfigWarnings(a.cfg, a.log)

	lockPath, err := sysdirs.AppData("backupnow.lock")
	if err != nil {
		return exitWith(ExitRuntimeError, fmt.Errorf("resolving lock path: %w", err))
	}
	lock, err := lockfile.Acquire(lockPath, a.log)
	if err != nil {
		return exitWith(ExitRuntimeError, err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.log.Error().Err(err).Msg("releasing instance lock")
		}
	}()

	if a.cfg.MetricsEnabled {
		a.sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer, a.log)
		a.coord.WithMetrics(a.sink)
		a.core.WithMetrics(a.sink)
	}

	if err := a.openHistory(); err != nil {
		return err
	}
	defer a.close()

	if err := a.start(); err != nil {
		return err
	}

	view := &timerView{}
	view.refresh(a.core.Timers())

	var httpServer *http.Server
	if a.cfg.MetricsEnabled {
		httpServer = a.serveHTTP(view)
	}

	prunerCtx, cancelPruner := context.WithCancel(context.Background())
	defer cancelPruner()
	var pruneWG sync.WaitGroup
	if a.store != nil {
		pcfg := history.DefaultConfig()
		pcfg.Retention = a.cfg.HistoryRetention
		pruner := history.NewPruner(pcfg, a.store, a.log)
		if a.sink != nil {
			pruner.WithMetrics(a.sink)
		}
		pruneWG.Add(1)
		go func() {
			defer pruneWG.Done()
			pruner.Run(prunerCtx)
		}()
	}

	// Settings edits wake the loop early instead of waiting out the
	// interval. The send never blocks; a wake already pending covers
	// any number of further edits.
	wake := make(chan struct{}, 1)
	limiter := rate.NewLimiter(rate.Every(wakeRateInterval), 1)
	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	var watchWG sync.WaitGroup
	watchWG.Add(1)
	go func() {
		defer watchWG.Done()
		err := a.core.Document().Watch(watchCtx, func() {
			if !limiter.Allow() {
				return
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		if err != nil {
			a.log.Warn().Err(err).
				Msg("settings watch unavailable; edits apply on the next interval after a restart")
		}
	}()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if _, err := sdnotify.SdNotify(false, sdnotify.SdNotifyReady); err != nil {
		a.log.Debug().Err(err).Msg("sd_notify ready")
	}
	a.log.Info().
		Dur("interval", a.cfg.CheckInterval).
		Bool("threaded", a.cfg.Threaded).
		Msg("daemon started")

	loopLog := a.log.With().Str("job", domain.TimerJobName).Logger()

	runOnce := func(reload bool) {
		if reload {
			errs, err := a.core.Start()
			if err != nil {
				loopLog.Error().Err(err).
					Msg("reloading settings failed; keeping previous state")
			} else {
				for _, e := range errs {
					loopLog.Error().Msg(e.Error())
				}
				loopLog.Info().Msg("settings reloaded")
			}
		}
		report, err := a.core.RunCycle(sigCtx, time.Now().UTC(), "", a.cfg.Threaded)
		switch {
		case err != nil:
			loopLog.Error().Err(err).Msg("check cycle failed")
		case report.Skipped:
			loopLog.Warn().Msg("previous cycle still running; skipped")
		case report.Ready > 0:
			loopLog.Info().Int("ready", report.Ready).Msg("cycle dispatched")
		}
		view.refresh(a.core.Timers())
	}

	runOnce(false)

	ticker := time.NewTicker(a.cfg.CheckInterval)
	defer ticker.Stop()

loop:
	for {
		select {
		case <-sigCtx.Done():
			break loop
		case <-ticker.C:
			runOnce(false)
		case <-wake:
			loopLog.Info().Msg("settings changed on disk; reloading")
			runOnce(true)
		}
	}

	a.log.Info().Msg("shutting down")
	if _, err := sdnotify.SdNotify(false, sdnotify.SdNotifyStopping); err != nil {
		a.log.Debug().Err(err).Msg("sd_notify stopping")
	}

	cancelWatch()
	watchWG.Wait()

	a.coord.StopSyncWait(a.cfg.StopMaxWait)

	// Cycles without ready timers never save, so a freshly seeded
	// settings file may not exist on disk yet; write it on the way out.
	if err := a.core.Save(); err != nil {
		a.log.Error().Err(err).Msg("final settings save failed")
	}

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		if err := httpServer.Shutdown(ctx); err != nil {
			a.log.Error().Err(err).Msg("http server shutdown")
		}
		cancel()
	}

	cancelPruner()
	pruneWG.Wait()

	a.log.Info().Msg("stopped")
	return nil
}

// serveHTTP starts the metrics and status listener in the background
// and returns the server for shutdown.
func (a *app) serveHTTP(view *timerView) *http.Server {
	h := api.NewHandler(view, a.coord, a.log).WithCopyTotals(a.run)
	if a.breaker != nil {
		h = h.WithBreaker(a.breaker)
	}
	if a.store != nil {
		h = h.WithHealthChecker(a.store)
	}

	mux := http.NewServeMux()
	mux.Handle(a.cfg.MetricsPath, promhttp.Handler())
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.MetricsPort),
		Handler: mux,
	}
	go func() {
		a.log.Info().
			Str("addr", srv.Addr).
			Str("metrics_path", a.cfg.MetricsPath).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("http server failed")
		}
	}()
	return srv
}
