package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBatchProcessed(t *testing.T) {
	m := newEvaluatorMetrics(prometheus.NewRegistry(), Config{ServiceName: "partnerflow", Environment: "test"})

	m.AddBatchProcessed("evaluate_partners", "partners", 3)
	m.AddBatchProcessed("evaluate_partners", "partners", 0)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.batchProcessed.WithLabelValues("evaluate_partners", "partners")))
}

func TestIncEvaluation(t *testing.T) {
	m := newEvaluatorMetrics(prometheus.NewRegistry(), Config{})

	m.IncEvaluation(EvaluationOutcomeMoved)
	m.IncEvaluation(EvaluationOutcomeMoved)
	m.IncEvaluation(EvaluationOutcomeStayed)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.evaluations.WithLabelValues(EvaluationOutcomeMoved)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.evaluations.WithLabelValues(EvaluationOutcomeStayed)))
}

func TestEvaluatorSeriesNames(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newEvaluatorMetrics(registry, Config{Environment: "test"})
	m.IncJobError("evaluate_partners", "db_lock_timeout")
	m.ObserveRunLoopLag(-time.Second)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["partnerflow_evaluator_job_errors_total"])
	assert.True(t, names["partnerflow_evaluator_runloop_lag_seconds"])

	count, err := testutil.GatherAndCount(registry, "partnerflow_evaluator_job_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilEvaluatorMetricsAreNoops(t *testing.T) {
	var m *EvaluatorMetrics
	assert.NotPanics(t, func() {
		m.IncJobRun("job")
		m.IncJobError("job", "unknown")
		m.ObserveDBLockWait(LockResourcePartnerByID, time.Millisecond)
	})
}
