// Package metrics exposes Prometheus metrics for matching cycles, expiry
// sweeps and scheduled jobs.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blackout-hub/blackout/internal/application/command"
	"github.com/blackout-hub/blackout/internal/domain/shared"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomePartial = "partial"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics is the worker's metric set, registered on its own registry.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	cycleRuns       *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	poolSize        prometheus.Gauge
	candidatePairs  prometheus.Gauge
	matchesCreated  prometheus.Counter
	unmatched       prometheus.Gauge
	slotConflicts   prometheus.Counter
	persistFailures prometheus.Counter

	sweepRuns        *prometheus.CounterVec
	matchesCompleted prometheus.Counter
	messagesDeleted  prometheus.Counter
	sweepFailures    prometheus.Counter

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	lockSkips   *prometheus.CounterVec
}

// New creates the metric set under the given namespace, together with the
// Go runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry:  reg,
		namespace: namespace,

		cycleRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Matching cycles by outcome",
		}, []string{"outcome"}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Duration of matching cycles in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		poolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "pool_size",
			Help:      "Eligible participants in the last cycle",
		}),
		candidatePairs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "candidate_pairs",
			Help:      "Scored candidate pairs in the last cycle",
		}),
		matchesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "matches_created_total",
			Help:      "Matches persisted by matching cycles",
		}),
		unmatched: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "unmatched",
			Help:      "Participants left unmatched by the last cycle",
		}),
		slotConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "slot_conflicts_total",
			Help:      "Pairs skipped because a participant was already matched that week",
		}),
		persistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "persist_failures_total",
			Help:      "Committed pairs whose write failed",
		}),

		sweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Expiry sweeps by outcome",
		}, []string{"outcome"}),
		matchesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "matches_completed_total",
			Help:      "Expired matches closed by sweeps",
		}),
		messagesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "messages_deleted_total",
			Help:      "Chat messages purged by sweeps",
		}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "failures_total",
			Help:      "Expired matches a sweep could not close",
		}),

		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by job and outcome",
		}, []string{"job", "outcome"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		lockSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "lock_skips_total",
			Help:      "Job runs skipped because another worker held the lock",
		}, []string{"job"}),
	}
}

// Registry returns the registry backing this metric set.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records a matching cycle. result may be nil when the cycle
// failed before producing one.
func (m *Metrics) ObserveCycle(result *command.RunMatchingCycleResult, err error) {
	m.cycleRuns.WithLabelValues(outcomeOf(result != nil, err)).Inc()
	if result == nil {
		return
	}

	m.cycleDuration.Observe(result.Duration.Seconds())
	m.poolSize.Set(float64(result.PoolSize))
	m.candidatePairs.Set(float64(result.CandidatePairs))
	m.matchesCreated.Add(float64(len(result.Matches)))
	m.unmatched.Set(float64(len(result.Unmatched)))
	m.slotConflicts.Add(float64(len(result.Conflicts)))
	m.persistFailures.Add(float64(len(result.Failures)))
}

// ObserveSweep records an expiry sweep.
func (m *Metrics) ObserveSweep(result *command.SweepResult, err error) {
	m.sweepRuns.WithLabelValues(outcomeOf(result != nil, err)).Inc()
	if result == nil {
		return
	}

	m.matchesCompleted.Add(float64(result.MatchesCompleted))
	m.messagesDeleted.Add(float64(result.MessagesDeleted))
	m.sweepFailures.Add(float64(len(result.Failures)))
}

// ObserveJob records one scheduled job execution.
func (m *Metrics) ObserveJob(job string, duration time.Duration, err error) {
	m.jobRuns.WithLabelValues(job, outcomeOf(false, err)).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// LockSkipped records a run skipped because the job lock was held elsewhere.
func (m *Metrics) LockSkipped(job string) {
	m.lockSkips.WithLabelValues(job).Inc()
}

// EventCounts reads the event bus counters.
type EventCounts func() (published, handled, failed int64)

// RegisterEventBus exposes the bus counters, read at scrape time.
func (m *Metrics) RegisterEventBus(counts EventCounts) {
	counter := func(name, help string, pick func(p, h, f int64) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "events",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(counts()))
		})
	}
	m.registry.MustRegister(
		counter("published_total", "Domain events published on the bus",
			func(p, _, _ int64) int64 { return p }),
		counter("handled_total", "Event handler calls that succeeded",
			func(_, h, _ int64) int64 { return h }),
		counter("handler_failures_total", "Event handler calls that failed or panicked",
			func(_, _, f int64) int64 { return f }),
	)
}

// outcomeOf maps a run to its label. A run that produced a result and an
// error did part of its work.
func outcomeOf(hasResult bool, err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case hasResult, errors.Is(err, shared.ErrCycleIncomplete):
		return OutcomePartial
	case errors.Is(err, shared.ErrLockNotAcquired):
		return OutcomeSkipped
	default:
		return OutcomeError
	}
}
