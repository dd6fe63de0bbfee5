package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsPartnerLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("program_id", "123"),
		attribute.String("partner_id", "456"),
		attribute.String("kind", "leads"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("program_id"), attrs[0].Key)
	assert.Equal(t, attribute.Key("kind"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordActivity(context.Background(), "1", "leads")
	m.RecordGroupMove(context.Background(), "1", "rule")
	m.RecordRateLimitAllowed(context.Background(), "1", "activity")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordMoveRuleConflict(context.Background(), "1")
	m.RecordRateLimitDenied(context.Background(), "1", "activity", "program-rate")
}

func TestGroupMovesAreCountedBySource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := New(Config{ServiceName: "partnerflow-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordGroupMove(ctx, "7", "rule")
	m.RecordGroupMove(ctx, "7", "rule")
	m.RecordGroupMove(ctx, "7", "manual")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	counts := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != "partnerflow_group_moves_total" {
				continue
			}
			sum, ok := metric.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				source, _ := dp.Attributes.Value("source")
				counts[source.AsString()] = dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"rule": 2, "manual": 1}, counts)
}
