// Package core wires the settings document, the timer and job
// registries, and the execution coordinator into the top-level check
// cycle. All state is explicit and owned by the caller's goroutine;
// there is no package-level singleton.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"backupnow/internal/domain"
	"backupnow/internal/history"
	"backupnow/internal/jobs"
	"backupnow/internal/schedule"
	"backupnow/internal/settings"
	"backupnow/internal/watcher"
)

// Coordinator is the slice of the execution coordinator the cycle
// needs: job dispatch for the watcher plus the re-entrancy guard for
// periodic checks.
type Coordinator interface {
	StartJob(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error)
	RunSync(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error)
	RunChecked(fn func()) bool
}

// MetricsSink defines the interface for recording cycle metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	CycleStarted()
	CycleCompleted(duration time.Duration, timersReady int, err error)
	TimersLoaded(count int)
}

// CycleReport describes one check cycle's outcome.
type CycleReport struct {
	// Skipped is true when the busy guard declined the run because a
	// previous cycle was still in flight.
	Skipped bool

	// Ready is the number of timers dispatched this cycle.
	Ready int

	// Result is the aggregate run outcome; zero when no timer fired.
	Result domain.RunResult
}

// Core owns the settings document and both registries and drives the
// check cycle over them. Not safe for concurrent use: one goroutine
// loads, runs cycles, and saves. In-flight jobs never touch this
// state; they report back through result records only.
type Core struct {
	coord   Coordinator
	doc     *settings.Document
	timers  *schedule.Registry
	jobs    *jobs.Registry
	store   *history.Store // nil-safe; methods report ErrDisabled
	metrics MetricsSink    // optional, nil = disabled
	log     zerolog.Logger

	settingsOverride string
	pollInterval     time.Duration
	clock            func() time.Time
}

func New(coord Coordinator, log zerolog.Logger) *Core {
	return &Core{
		coord:        coord,
		doc:          settings.New(log),
		log:          log,
		pollInterval: time.Second,
		clock:        time.Now,
	}
}

// WithMetrics attaches a metrics sink for cycle-level observations.
func (c *Core) WithMetrics(sink MetricsSink) *Core {
	c.metrics = sink
	return c
}

// WithHistory attaches the run-history store. A nil store is valid
// and records nothing.
func (c *Core) WithHistory(store *history.Store) *Core {
	c.store = store
	return c
}

// WithSettingsOverride pins the settings file path, bypassing the
// search order.
func (c *Core) WithSettingsOverride(path string) *Core {
	c.settingsOverride = path
	return c
}

// Start loads the settings document, heals structural damage, builds
// both registries, and seeds a default timer when none survive. The
// returned slice accumulates validation problems (the cycle still
// runs with them); the error is reserved for hard failures such as an
// unreadable or unparseable settings file.
func (c *Core) Start() ([]error, error) {
	path, exists, err := settings.Resolve(c.settingsOverride)
	if err != nil {
		return nil, fmt.Errorf("resolving settings path: %w", err)
	}
	if exists {
		if err := c.doc.Load(path); err != nil {
			return nil, err
		}
		c.log.Warn().Str("path", path).Msg("using settings")
	} else {
		c.doc.SetPath(path)
		c.log.Warn().Str("path", path).Msg("defaulting to new settings file")
	}

	c.writeAdvisoryComments()

	if !c.doc.Has("jobs") {
		c.doc.Set("jobs", map[string]any{})
	}
	c.healTaskmanager()

	var errs []error
	c.jobs = jobs.FromDocument(c.doc, c.log)
	errs = append(errs, c.jobs.Validate()...)

	tm, ok := c.doc.GetMap("taskmanager")
	if !ok {
		// healTaskmanager guarantees the mapping; reaching here is a
		// programming error, not a user-data problem.
		return errs, errors.New("taskmanager is not a mapping after healing")
	}
	registry, timerErrs := schedule.FromMap(tm, c.log)
	errs = append(errs, timerErrs...)
	c.timers = registry
	c.timers.SeedDefault()

	if c.metrics != nil {
		c.metrics.TimersLoaded(c.timers.Len())
	}
	c.log.Info().
		Int("timers", c.timers.Len()).
		Int("jobs", c.jobs.Len()).
		Int("problems", len(errs)).
		Msg("started")
	return errs, nil
}

// writeAdvisoryComments keeps human-facing notes in the settings file
// so someone editing it by hand sees the ground rules.
func (c *Core) writeAdvisoryComments() {
	c.doc.Set("comment", "Destinations are only written when the target"+
		" marker file is present, so an unmounted drive is never mistaken"+
		" for a backup volume.")
	c.doc.Set("comment2", "Mark a drive as a backup target with:"+
		" backupnow target <dir>")
	c.doc.Set("comment3", "Timers should stay \"enabled\"; a job with no"+
		" timer referencing it never runs.")
	c.doc.Set("comment4", "All times are UTC"+
		" (time strings and timestamps).")
}

// healTaskmanager resets a non-mapping taskmanager value and ensures
// the key exists, so deserialization never sees a malformed shape.
func (c *Core) healTaskmanager() {
	if raw, ok := c.doc.Get("taskmanager"); ok {
		if _, isMap := raw.(map[string]any); !isMap {
			c.log.Error().
				Str("type", fmt.Sprintf("%T", raw)).
				Msg("healing non-mapping taskmanager")
			c.doc.Delete("taskmanager")
		}
	}
	if !c.doc.Has("taskmanager") {
		c.doc.Set("taskmanager", map[string]any{"timers": map[string]any{}})
	}
}

// RunCycle performs one check cycle under the coordinator's
// re-entrancy guard: compute ready timers at now, dispatch their jobs,
// mark the dispatched timers ran, record history, and save the
// document once.
// onlyTimer, when non-empty, restricts dispatch to the ready timer
// with that name (diagnostic runs). A skipped cycle reports
// Skipped=true and no error.
func (c *Core) RunCycle(ctx context.Context, now time.Time, onlyTimer string, threaded bool) (CycleReport, error) {
	var (
		report CycleReport
		err    error
	)
	ran := c.coord.RunChecked(func() {
		report, err = c.runCycle(ctx, now, onlyTimer, threaded)
	})
	if !ran {
		return CycleReport{Skipped: true}, nil
	}
	return report, err
}

func (c *Core) runCycle(ctx context.Context, now time.Time, onlyTimer string, threaded bool) (CycleReport, error) {
	begin := c.clock()
	if c.metrics != nil {
		c.metrics.CycleStarted()
	}

	now = now.UTC()
	ready := c.timers.ReadyTimers(now)
	if onlyTimer != "" {
		ready = c.filterByName(ready, onlyTimer)
	}
	if len(ready) == 0 {
		c.log.Info().Time("now", now).Msg("no timers are ready")
		if c.metrics != nil {
			c.metrics.CycleCompleted(c.clock().Sub(begin), 0, nil)
		}
		return CycleReport{}, nil
	}

	w := watcher.New(c.coord, c.jobs, c.log)
	for _, t := range ready {
		c.log.Info().Str("timer", t.Name).Str("time", t.TimeOfDay).Msg("timer ready")
		w.AddTimer(t.Name, t)
	}

	var res domain.RunResult
	if threaded {
		w.Start()
		if waitErr := c.waitDone(ctx, w); waitErr != nil {
			c.log.Warn().Err(waitErr).Msg("stopped waiting for threaded jobs")
		}
		res = w.Result()
	} else {
		c.log.Info().Strs("jobs", w.JobNames()).Msg("running jobs")
		res = w.RunSync()
	}

	// Ran is set only after the dispatch attempt, so a crash before
	// this point re-fires the timer rather than skipping the period.
	for _, t := range ready {
		if markErr := c.timers.MarkRan(t.Name, now); markErr != nil {
			c.log.Error().Err(markErr).Str("timer", t.Name).Msg("marking timer ran")
		}
	}

	c.recordHistory(ctx, w.Records())

	var cycleErr error
	if res.Failed() {
		cycleErr = errors.New(res.Error)
	}
	if saveErr := c.Save(); saveErr != nil {
		if cycleErr == nil {
			cycleErr = saveErr
		} else {
			c.log.Error().Err(saveErr).Msg("saving settings after failed cycle")
		}
	} else {
		c.log.Info().Str("path", c.doc.Path()).Msg("settings saved")
	}

	if c.metrics != nil {
		c.metrics.CycleCompleted(c.clock().Sub(begin), len(ready), cycleErr)
	}
	return CycleReport{Ready: len(ready), Result: res}, cycleErr
}

// filterByName keeps the one ready timer named like the diagnostic
// filter, logging what was skipped.
func (c *Core) filterByName(ready []*domain.Timer, name string) []*domain.Timer {
	var kept []*domain.Timer
	for _, t := range ready {
		if t.Name == name {
			kept = append(kept, t)
			continue
		}
		c.log.Warn().Str("timer", t.Name).Str("only", name).Msg("ready timer skipped by name filter")
	}
	return kept
}

// waitDone polls the watcher until every dispatched job reported.
// Cancellation stops the wait, not the jobs; the coordinator's stop
// path remains responsible for outstanding work.
func (c *Core) waitDone(ctx context.Context, w *watcher.Watcher) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for !w.IsDone() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// recordHistory persists one row per finished job. History being
// disabled is the normal case for one-shot runs and is not an error.
func (c *Core) recordHistory(ctx context.Context, records []watcher.RunRecord) {
	for _, rec := range records {
		run := history.Run{
			Job:        rec.Job,
			Status:     runStatus(rec.Result.Error),
			Error:      rec.Result.Error,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		}
		if err := c.store.Record(ctx, run); err != nil && !errors.Is(err, history.ErrDisabled) {
			c.log.Error().Err(err).Str("job", rec.Job).Msg("recording run history")
		}
	}
}

func runStatus(errMsg string) string {
	if errMsg != "" {
		return "error"
	}
	return "done"
}

// Save serializes the timer registry into the document and writes the
// file. Jobs are read-only at runtime, so only the taskmanager key is
// rewritten.
func (c *Core) Save() error {
	c.doc.Set("taskmanager", c.timers.ToMap())
	return c.doc.Save()
}

// Timers exposes the timer registry for listings and status views.
// Callers must not use it concurrently with RunCycle.
func (c *Core) Timers() *schedule.Registry { return c.timers }

// Jobs exposes the job registry.
func (c *Core) Jobs() *jobs.Registry { return c.jobs }

// Document exposes the settings document, mainly for its path.
func (c *Core) Document() *settings.Document { return c.doc }
