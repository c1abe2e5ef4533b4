package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Config holds pruner configuration.
type Config struct {
	// Interval is how often the pruner runs. Default: 6 hours.
	Interval time.Duration

	// Retention is how long finished runs are kept. Default: 90 days.
	Retention time.Duration

	// BatchSize is the maximum number of rows deleted per statement.
	// Default: 500.
	BatchSize int
}

// DefaultConfig returns the default pruner configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  6 * time.Hour,
		Retention: 90 * 24 * time.Hour,
		BatchSize: 500,
	}
}

// MetricsSink defines the interface for recording pruner metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	HistoryPruned(rows int)
}

// Pruner deletes history rows that have aged out of the retention
// window. Only the long-running daemon runs one; one-shot check
// invocations never prune.
type Pruner struct {
	config  Config
	store   *Store
	log     zerolog.Logger
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func NewPruner(config Config, store *Store, log zerolog.Logger) *Pruner {
	return &Pruner{
		config: config,
		store:  store,
		log:    log,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the pruner.
func (p *Pruner) WithMetrics(sink MetricsSink) *Pruner {
	p.metrics = sink
	return p
}

// Run starts the retention loop. It blocks until ctx is cancelled.
func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.log.Info().
		Dur("interval", p.config.Interval).
		Dur("retention", p.config.Retention).
		Int("batch", p.config.BatchSize).
		Msg("history pruner started")

	// Prune immediately on startup, then on ticker.
	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("history pruner stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle deletes batches until a short batch signals the backlog is
// gone. Errors abort the cycle; the next interval retries.
func (p *Pruner) runCycle(ctx context.Context) {
	cutoff := p.clock().UTC().Add(-p.config.Retention)

	var total int64
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := p.store.PruneBefore(ctx, cutoff, p.config.BatchSize)
		if err != nil {
			p.log.Error().Err(err).Msg("history prune failed")
			return
		}
		total += n
		if p.metrics != nil && n > 0 {
			p.metrics.HistoryPruned(int(n))
		}
		if n < int64(p.config.BatchSize) {
			break
		}
	}
	if total > 0 {
		p.log.Info().
			Int64("rows", total).
			Time("cutoff", cutoff).
			Msg("pruned history")
	}
}
