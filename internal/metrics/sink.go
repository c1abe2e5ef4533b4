package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Cycle metrics
	CycleStarted()
	CycleCompleted(duration time.Duration, timersReady int, err error)
	TimersLoaded(count int)

	// Job run metrics
	JobRunCompleted(status string, duration time.Duration)
	JobContention()
	OrphanDiscarded()

	// History metrics
	HistoryPruned(rows int)
}

// Status constants for JobRunCompleted.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// ClassifyRun maps a run's error message to a status label with a
// bounded value set.
func ClassifyRun(errMsg string) string {
	if errMsg != "" {
		return StatusError
	}
	return StatusDone
}
