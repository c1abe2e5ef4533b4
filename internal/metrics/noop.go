package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) CycleStarted()                                                     {}
func (n *NoopSink) CycleCompleted(duration time.Duration, timersReady int, err error) {}
func (n *NoopSink) TimersLoaded(count int)                                            {}
func (n *NoopSink) JobRunCompleted(status string, duration time.Duration)             {}
func (n *NoopSink) JobContention()                                                    {}
func (n *NoopSink) OrphanDiscarded()                                                  {}
func (n *NoopSink) HistoryPruned(rows int)                                            {}
