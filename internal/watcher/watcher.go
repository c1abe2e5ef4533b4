// Package watcher binds a cycle's ready timers to concrete job names
// and runs them, sequentially or through the coordinator.
package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"backupnow/internal/domain"
	"backupnow/internal/jobs"
)

// Starter is the slice of the execution coordinator the watcher
// needs. Both methods return the contention record when the name is
// already running; the spawned run's outcome arrives via the
// progress callback.
type Starter interface {
	StartJob(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error)
	RunSync(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error)
}

// RunRecord is one job's outcome within a cycle, in completion order.
type RunRecord struct {
	Job        string
	Result     domain.RunResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Watcher is built fresh for each check cycle: the orchestrator adds
// the ready timers, then runs the resolved jobs exactly once. It is
// not reusable across cycles.
type Watcher struct {
	coord Starter
	jobs  *jobs.Registry
	log   zerolog.Logger
	clock func() time.Time

	order  []string
	timers map[string]*domain.Timer

	mu       sync.Mutex
	starts   map[string]time.Time
	records  []RunRecord
	firstErr string
	finished int
	total    int
	started  bool
}

func New(coord Starter, reg *jobs.Registry, log zerolog.Logger) *Watcher {
	return &Watcher{
		coord:  coord,
		jobs:   reg,
		log:    log,
		clock:  time.Now,
		timers: map[string]*domain.Timer{},
		starts: map[string]time.Time{},
	}
}

// AddTimer records a ready timer for this cycle. Adding the same name
// twice keeps the first position and replaces the timer.
func (w *Watcher) AddTimer(name string, timer *domain.Timer) {
	if _, ok := w.timers[name]; !ok {
		w.order = append(w.order, name)
	}
	w.timers[name] = timer
}

// JobNames expands every bound timer's commands into job names,
// deduplicated in first-seen order. The wildcard command expands to
// every job in the registry, in the registry's sorted order.
func (w *Watcher) JobNames() []string {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for _, timerName := range w.order {
		for _, command := range w.timers[timerName].Commands {
			if command == domain.WildcardCommand {
				for _, jobName := range w.jobs.Names() {
					add(jobName)
				}
				continue
			}
			add(command)
		}
	}
	return names
}

// RunSync runs every resolved job on the caller's goroutine, in
// JobNames order. A failing job does not stop the ones after it; the
// first error is kept and returned in the aggregate result.
func (w *Watcher) RunSync() domain.RunResult {
	names := w.JobNames()

	w.mu.Lock()
	w.total = len(names)
	w.started = true
	w.mu.Unlock()

	for _, name := range names {
		job, ok := w.jobs.Get(name)
		if !ok {
			w.log.Error().Str("job", name).Msg("timer names a job that does not exist")
			w.noteStart(name)
			w.complete(name, domain.Fail(fmt.Sprintf("no job named \"%s\"", name)))
			continue
		}
		w.noteStart(name)
		res, err := w.coord.RunSync(name, job, func(res domain.RunResult) { w.complete(name, res) })
		if err != nil {
			w.complete(name, domain.Fail(err.Error()))
			continue
		}
		if res.Failed() {
			// Contention: this name is already running elsewhere.
			w.log.Warn().Str("job", name).Msg(res.Error)
			w.complete(name, res)
		}
	}
	return w.Result()
}

// Start dispatches every resolved job through the coordinator and
// returns without waiting. Callers poll IsDone until every dispatched
// job has reported, then read Result. There is no mid-run
// cancellation in this mode.
func (w *Watcher) Start() {
	names := w.JobNames()

	w.mu.Lock()
	w.total = len(names)
	w.started = true
	w.mu.Unlock()

	for _, name := range names {
		job, ok := w.jobs.Get(name)
		if !ok {
			w.log.Error().Str("job", name).Msg("timer names a job that does not exist")
			w.noteStart(name)
			w.complete(name, domain.Fail(fmt.Sprintf("no job named \"%s\"", name)))
			continue
		}
		w.noteStart(name)
		res, err := w.coord.StartJob(name, job, func(res domain.RunResult) { w.complete(name, res) })
		if err != nil {
			w.complete(name, domain.Fail(err.Error()))
			continue
		}
		if res.Failed() {
			w.log.Warn().Str("job", name).Msg(res.Error)
			w.complete(name, res)
		}
	}
}

func (w *Watcher) noteStart(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.starts[name] = w.clock()
}

// complete records one job's result. Used as the progress callback
// for spawned runs and called directly for jobs that never spawned.
func (w *Watcher) complete(name string, res domain.RunResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	finished := w.clock()
	started, ok := w.starts[name]
	if !ok {
		started = finished
	}
	w.records = append(w.records, RunRecord{
		Job:        name,
		Result:     res,
		StartedAt:  started,
		FinishedAt: finished,
	})
	w.finished++
	if res.Failed() && w.firstErr == "" {
		w.firstErr = res.Error
	}
}

// IsDone reports whether every dispatched job has reported a result.
// False until Start or RunSync has resolved the job list.
func (w *Watcher) IsDone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started && w.finished >= w.total
}

// Err returns the first error observed, or "" if none (or none yet).
func (w *Watcher) Err() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.firstErr
}

// Result returns the aggregate outcome: status done, plus the first
// error observed across all jobs, if any.
func (w *Watcher) Result() domain.RunResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.firstErr != "" {
		return domain.Fail(w.firstErr)
	}
	return domain.Done()
}

// Records returns a copy of the per-job outcomes collected so far,
// in completion order.
func (w *Watcher) Records() []RunRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]RunRecord, len(w.records))
	copy(out, w.records)
	return out
}
