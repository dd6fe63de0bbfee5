package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

func TestNewProviderDisabledIsNoop(t *testing.T) {
	mp, err := NewProvider(nil, Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, noop.MeterProvider{}, mp)
}

func TestNewProviderRejectsUnknownProtocol(t *testing.T) {
	_, err := NewProvider(nil, Config{Enabled: true, ExporterProtocol: "udp"}, zap.NewNop())
	assert.ErrorContains(t, err, `unsupported OTLP protocol "udp"`)
}
