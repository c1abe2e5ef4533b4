package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	log zerolog.Logger

	// Cycle metrics
	cyclesTotal      prometheus.Counter
	cycleErrorsTotal prometheus.Counter
	timersReadyTotal prometheus.Counter
	cycleDuration    prometheus.Histogram
	timersLoaded     prometheus.Gauge

	// Job run metrics
	jobRunsTotal       *prometheus.CounterVec
	jobRunDuration     prometheus.Histogram
	contentionTotal    prometheus.Counter
	orphansDiscarded   prometheus.Counter
	historyPrunedTotal prometheus.Counter
}

// NewPrometheusSink creates a Prometheus metrics sink. If a collector
// fails to register the sink still works; the collision is logged.
func NewPrometheusSink(reg prometheus.Registerer, log zerolog.Logger) *PrometheusSink {
	s := &PrometheusSink{log: log}
	s.initCycleMetrics(reg)
	s.initJobMetrics(reg)
	return s
}

func (s *PrometheusSink) initCycleMetrics(reg prometheus.Registerer) {
	s.cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backupnow_cycles_total",
		Help: "Total number of scheduling cycles started.",
	})
	s.cycleErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backupnow_cycle_errors_total",
		Help: "Total number of scheduling cycles that surfaced an error.",
	})
	s.timersReadyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backupnow_timers_ready_total",
		Help: "Total number of timers found ready across all cycles.",
	})
	s.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "backupnow_cycle_duration_seconds",
		Help:    "Duration of each scheduling cycle in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 600},
	})
	s.timersLoaded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backupnow_timers_loaded",
		Help: "Number of timers currently loaded from the settings document.",
	})

	s.register(reg, s.cyclesTotal, "backupnow_cycles_total")
	s.register(reg, s.cycleErrorsTotal, "backupnow_cycle_errors_total")
	s.register(reg, s.timersReadyTotal, "backupnow_timers_ready_total")
	s.register(reg, s.cycleDuration, "backupnow_cycle_duration_seconds")
	s.register(reg, s.timersLoaded, "backupnow_timers_loaded")
}

func (s *PrometheusSink) initJobMetrics(reg prometheus.Registerer) {
	s.jobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backupnow_job_runs_total",
		Help: "Total number of completed job runs by status.",
	}, []string{"status"})

	s.jobRunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "backupnow_job_run_duration_seconds",
		Help:    "Duration of each job run in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 5, 30, 120, 600, 3600},
	})

	s.contentionTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backupnow_job_contention_total",
		Help: "Total number of job starts rejected because the job was already running.",
	})

	s.orphansDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backupnow_orphans_discarded_total",
		Help: "Total number of stale execution entries discarded by the coordinator.",
	})

	s.historyPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backupnow_history_pruned_rows_total",
		Help: "Total number of run history rows removed by retention pruning.",
	})

	s.register(reg, s.jobRunsTotal, "backupnow_job_runs_total")
	s.register(reg, s.jobRunDuration, "backupnow_job_run_duration_seconds")
	s.register(reg, s.contentionTotal, "backupnow_job_contention_total")
	s.register(reg, s.orphansDiscarded, "backupnow_orphans_discarded_total")
	s.register(reg, s.historyPrunedTotal, "backupnow_history_pruned_rows_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.log.Warn().Err(err).Str("collector", name).Msg("metrics registration failed")
	}
}

// Cycle metrics implementation

func (s *PrometheusSink) CycleStarted() {
	s.cyclesTotal.Inc()
}

func (s *PrometheusSink) CycleCompleted(duration time.Duration, timersReady int, err error) {
	s.cycleDuration.Observe(duration.Seconds())
	s.timersReadyTotal.Add(float64(timersReady))
	if err != nil {
		s.cycleErrorsTotal.Inc()
	}
}

func (s *PrometheusSink) TimersLoaded(count int) {
	s.timersLoaded.Set(float64(count))
}

// Job run metrics implementation

func (s *PrometheusSink) JobRunCompleted(status string, duration time.Duration) {
	s.jobRunsTotal.WithLabelValues(status).Inc()
	s.jobRunDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) JobContention() {
	s.contentionTotal.Inc()
}

func (s *PrometheusSink) OrphanDiscarded() {
	s.orphansDiscarded.Inc()
}

func (s *PrometheusSink) HistoryPruned(rows int) {
	s.historyPrunedTotal.Add(float64(rows))
}
