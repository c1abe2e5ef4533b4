package coordinator

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"backupnow/internal/domain"
)

// Stop wait tuning. The cap bounds the interval between liveness
// polls, not the total wait: stop never abandons a running job.
const (
	DefaultStopMaxWait = 20 * time.Second
	stopInitialWait    = 1 * time.Second
	stopWaitStep       = 2 * time.Second
)

// ErrProgressRequired is returned when a job is started without a
// progress callback to receive its result.
var ErrProgressRequired = errors.New("coordinator: progress callback is required")

// Backend performs the actual backup work for one job. Run blocks
// until the job completes; mid-run cancellation is not supported, so
// implementations must bound their own work.
type Backend interface {
	Run(name string, job domain.Job) domain.RunResult
}

// MetricsSink defines the interface for recording coordinator metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	JobRunCompleted(status string, duration time.Duration)
	JobContention()
	OrphanDiscarded()
}

// execution is the registry entry for one in-flight job. done is
// closed when the run finishes and doubles as the liveness signal.
type execution struct {
	id        uuid.UUID
	name      string
	startedAt time.Time
	done      chan struct{}
}

func (e *execution) alive() bool {
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// RunningJob is a point-in-time snapshot of one in-flight execution.
type RunningJob struct {
	ID        uuid.UUID
	Name      string
	StartedAt time.Time
}

// Coordinator guarantees at most one live execution per job name and
// offers a cooperative, blocking stop. The name-keyed registry is the
// only state shared between the spawning caller and the spawned
// execution's completion path; every touch holds mu.
type Coordinator struct {
	backend Backend
	log     zerolog.Logger
	metrics MetricsSink // optional, nil = disabled

	mu         sync.Mutex
	executions map[string]*execution

	running atomic.Bool // run level; dropped by StopSync

	clock func() time.Time
}

func New(backend Backend, log zerolog.Logger) *Coordinator {
	c := &Coordinator{
		backend:    backend,
		log:        log,
		executions: make(map[string]*execution),
		clock:      time.Now,
	}
	c.running.Store(true)
	return c
}

// WithMetrics attaches a metrics sink to the coordinator.
func (c *Coordinator) WithMetrics(sink MetricsSink) *Coordinator {
	c.metrics = sink
	return c
}

// StartJob spawns job on its own goroutine and registers it under
// name. If name already maps to a live execution, nothing is spawned
// and the returned result reports the contention; that is a per-name
// soft failure, not an error of this call. A successful spawn returns
// an empty result, and the run's real outcome arrives later through
// progress.
func (c *Coordinator) StartJob(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error) {
	if progress == nil {
		return domain.RunResult{}, ErrProgressRequired
	}
	exec, ok := c.register(name)
	if !ok {
		if c.metrics != nil {
			c.metrics.JobContention()
		}
		return domain.Fail(name + " is already running."), nil
	}
	go c.run(exec, job, progress)
	return domain.RunResult{}, nil
}

// RunSync runs job on the caller's goroutine, blocking until it
// completes. Registration rules match StartJob, so a job started
// elsewhere still reports contention here.
func (c *Coordinator) RunSync(name string, job domain.Job, progress domain.Progress) (domain.RunResult, error) {
	if progress == nil {
		return domain.RunResult{}, ErrProgressRequired
	}
	exec, ok := c.register(name)
	if !ok {
		if c.metrics != nil {
			c.metrics.JobContention()
		}
		return domain.Fail(name + " is already running."), nil
	}
	c.run(exec, job, progress)
	return domain.RunResult{}, nil
}

// register claims name in the execution registry. It returns false if
// a live execution already holds the name. A dead leftover entry is
// discarded first, so the registry heals itself.
func (c *Coordinator) register(name string) (*execution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prior, ok := c.executions[name]; ok {
		if prior.alive() {
			return nil, false
		}
		c.log.Warn().Str("job", name).Msg("discarding orphaned execution entry")
		delete(c.executions, name)
		if c.metrics != nil {
			c.metrics.OrphanDiscarded()
		}
	}

	exec := &execution{
		id:        uuid.New(),
		name:      name,
		startedAt: c.clock(),
		done:      make(chan struct{}),
	}
	c.executions[name] = exec
	return exec, true
}

// run executes the job and delivers its result. The registry entry is
// removed before progress fires so that a callback observing the
// coordinator sees the job as finished.
func (c *Coordinator) run(exec *execution, job domain.Job, progress domain.Progress) {
	result := c.backend.Run(exec.name, job)
	duration := c.clock().Sub(exec.startedAt)

	c.finish(exec)

	if c.metrics != nil {
		c.metrics.JobRunCompleted(classify(result), duration)
	}
	progress(result)
}

// finish marks exec done and releases its registry slot.
func (c *Coordinator) finish(exec *execution) {
	c.mu.Lock()
	close(exec.done)
	if c.executions[exec.name] == exec {
		delete(c.executions, exec.name)
	}
	c.mu.Unlock()
}

func classify(result domain.RunResult) string {
	if result.Failed() {
		return "error"
	}
	return "done"
}

// StopSync drops the run level and blocks until every registered
// execution has finished. Cooperative: running jobs are waited for,
// never interrupted.
func (c *Coordinator) StopSync() {
	c.StopSyncWait(DefaultStopMaxWait)
}

// StopSyncWait is StopSync with an explicit cap on the poll interval.
func (c *Coordinator) StopSyncWait(maxWait time.Duration) {
	c.stopWait(stopInitialWait, stopWaitStep, maxWait)
}

func (c *Coordinator) stopWait(wait, step, maxWait time.Duration) {
	c.running.Store(false)
	for {
		alive := c.pruneDead()
		if len(alive) == 0 {
			return
		}
		c.log.Warn().
			Strs("jobs", alive).
			Dur("wait", wait).
			Msg("waiting for running jobs")
		time.Sleep(wait)
		wait += step
		if wait > maxWait {
			wait = maxWait
		}
	}
}

// pruneDead removes registry entries whose executions have finished
// and returns the names still alive, sorted. Entries normally remove
// themselves on completion, so finding one here is worth a warning.
func (c *Coordinator) pruneDead() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	alive := make([]string, 0, len(c.executions))
	for name, exec := range c.executions {
		if exec.alive() {
			alive = append(alive, name)
			continue
		}
		c.log.Warn().Str("job", name).Msg("removing orphaned execution entry")
		delete(c.executions, name)
	}
	sort.Strings(alive)
	return alive
}

// Stopping reports whether StopSync has been requested. Cooperative
// loops consult this to stop starting new work.
func (c *Coordinator) Stopping() bool {
	return !c.running.Load()
}

// RunChecked runs fn on the caller's goroutine under the reserved
// TimerJobName registry entry, unless the coordinator is stopping or a
// previous checked run is still in flight. It reports whether fn ran.
// Overlapping checks are skipped, never queued, and because the check
// occupies a registry slot, StopSync waits for it like any job.
func (c *Coordinator) RunChecked(fn func()) bool {
	if c.Stopping() {
		return false
	}
	exec, ok := c.register(domain.TimerJobName)
	if !ok {
		c.log.Warn().Msg("periodic check still in flight; skipping")
		return false
	}
	defer c.finish(exec)
	fn()
	return true
}

// Running returns a snapshot of the live executions, sorted by name.
func (c *Coordinator) Running() []RunningJob {
	c.mu.Lock()
	defer c.mu.Unlock()

	jobs := make([]RunningJob, 0, len(c.executions))
	for _, exec := range c.executions {
		if !exec.alive() {
			continue
		}
		jobs = append(jobs, RunningJob{
			ID:        exec.id,
			Name:      exec.name,
			StartedAt: exec.startedAt,
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// InFlight returns the number of live executions.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, exec := range c.executions {
		if exec.alive() {
			n++
		}
	}
	return n
}
