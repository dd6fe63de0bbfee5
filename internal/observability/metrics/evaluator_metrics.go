package metrics

import (
	"cmp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation outcomes, also reported on evaluator.Result.
const (
	EvaluationOutcomeMoved   = "moved"
	EvaluationOutcomeStayed  = "stayed"
	EvaluationOutcomeBanned  = "banned"
	EvaluationOutcomeSkipped = "skipped"
)

const (
	EvaluatorBatchDeferredReasonSkipLockedEmpty = "skip_locked_empty"
	EvaluatorBatchDeferredReasonLockHeld        = "lock_held"
)

const (
	LockResourcePartnersForEvaluation = "partners_for_evaluation"
	LockResourcePartnerByID           = "partner_by_id"
)

var (
	jobDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
	lockWaitBuckets    = []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 30}
)

// EvaluatorMetrics are the Prometheus series of the background evaluator.
// All methods are no-ops on a nil receiver.
type EvaluatorMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	batchDeferred  *prometheus.CounterVec
	runLoopLag     prometheus.Histogram
	evaluations    *prometheus.CounterVec
	dbLockWait     *prometheus.HistogramVec
}

var (
	evaluatorMetricsOnce sync.Once
	evaluatorMetrics     *EvaluatorMetrics
)

func Evaluator() *EvaluatorMetrics {
	return EvaluatorWithConfig(Config{})
}

// EvaluatorWithConfig registers the evaluator series on the default registry
// the first time it is called. Later calls ignore cfg.
func EvaluatorWithConfig(cfg Config) *EvaluatorMetrics {
	evaluatorMetricsOnce.Do(func() {
		evaluatorMetrics = newEvaluatorMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return evaluatorMetrics
}

func newEvaluatorMetrics(registerer prometheus.Registerer, cfg Config) *EvaluatorMetrics {
	factory := promauto.With(cmp.Or[prometheus.Registerer](registerer, prometheus.DefaultRegisterer))
	labels := prometheus.Labels{
		"service": cmp.Or(strings.TrimSpace(cfg.ServiceName), "partnerflow"),
		"env":     cmp.Or(strings.TrimSpace(cfg.Environment), "unknown"),
	}
	counter := func(name, help string, keys ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "partnerflow",
			Subsystem:   "evaluator",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, keys)
	}
	histogram := func(name, help string, buckets []float64, keys ...string) *prometheus.HistogramVec {
		return factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "partnerflow",
			Subsystem:   "evaluator",
			Name:        name,
			Help:        help,
			Buckets:     buckets,
			ConstLabels: labels,
		}, keys)
	}

	return &EvaluatorMetrics{
		jobRuns:        counter("job_runs_total", "Evaluator job runs.", "job"),
		jobDuration:    histogram("job_duration_seconds", "Evaluator job wall time.", jobDurationBuckets, "job"),
		jobTimeouts:    counter("job_timeouts_total", "Evaluator jobs stopped by their deadline.", "job"),
		jobErrors:      counter("job_errors_total", "Evaluator job failures by reason.", "job", "reason"),
		batchProcessed: counter("batch_processed_total", "Rows handled per evaluator batch.", "job", "resource"),
		batchDeferred:  counter("batch_deferred_total", "Batches put off until the next tick.", "job", "reason"),
		runLoopLag: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "partnerflow",
			Subsystem:   "evaluator",
			Name:        "runloop_lag_seconds",
			Help:        "Delay between a scheduled tick and the run that served it.",
			Buckets:     jobDurationBuckets,
			ConstLabels: labels,
		}),
		evaluations: counter("partner_evaluations_total", "Partner evaluations by outcome.", "outcome"),
		dbLockWait:  histogram("db_lock_wait_seconds", "Time spent acquiring partner row locks.", lockWaitBuckets, "resource"),
	}
}

func (m *EvaluatorMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *EvaluatorMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *EvaluatorMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts a failed job. reason must come from a small fixed set.
func (m *EvaluatorMetrics) IncJobError(job, reason string) {
	if m != nil {
		m.jobErrors.WithLabelValues(job, reason).Inc()
	}
}

func (m *EvaluatorMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *EvaluatorMetrics) IncBatchDeferred(job, reason string) {
	if m != nil {
		m.batchDeferred.WithLabelValues(job, reason).Inc()
	}
}

// ObserveRunLoopLag clamps negative lag (early ticks) to zero.
func (m *EvaluatorMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(lag, 0).Seconds())
	}
}

func (m *EvaluatorMetrics) IncEvaluation(outcome string) {
	if m != nil {
		m.evaluations.WithLabelValues(outcome).Inc()
	}
}

func (m *EvaluatorMetrics) ObserveDBLockWait(resource string, d time.Duration) {
	if m != nil {
		m.dbLockWait.WithLabelValues(resource).Observe(d.Seconds())
	}
}
