package tracing

import (
	"context"
	"testing"

	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("zipkin", "")
	assert.ErrorContains(t, err, `unsupported OTLP protocol "zipkin"`)
}

func TestNewProviderDisabledStillRecords(t *testing.T) {
	tp, err := NewProvider(nil, Config{ServiceName: "partnerflow", SamplingRatio: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.True(t, span.IsRecording())
}

func TestCorrelationProcessorTagsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(correlationProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)

	ctx := correlation.WithID(context.Background(), "corr-42")
	_, span := tp.Tracer("test").Start(ctx, "evaluate")
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), attribute.String("correlation_id", "corr-42"))
}
