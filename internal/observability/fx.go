package observability

import (
	"github.com/smallbiznis/partnerflow/internal/observability/logger"
	"github.com/smallbiznis/partnerflow/internal/observability/metrics"
	"github.com/smallbiznis/partnerflow/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the logger, tracer provider and metric instruments. It
// expects config.Config from the host binary.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		splitConfig,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
	fx.Invoke(func(cfg metrics.Config) { metrics.EvaluatorWithConfig(cfg) }),
)

type componentConfigs struct {
	fx.Out

	Logger  logger.Config
	Tracing tracing.Config
	Metrics metrics.Config
}

// splitConfig hands each component its slice of Config. Debug mode adds stack
// traces on errors and turns off log sampling.
func splitConfig(cfg Config) componentConfigs {
	debug := cfg.Debug()
	return componentConfigs{
		Logger: logger.Config{
			ServiceName:         cfg.ServiceName,
			Environment:         cfg.Environment,
			Version:             cfg.Version,
			Level:               cfg.LogLevel,
			Format:              cfg.LogFormat,
			Debug:               debug,
			IncludeCaller:       true,
			IncludeStackOnError: debug,
		},
		Tracing: tracing.Config{
			Enabled:          cfg.OtelEnabled,
			ServiceName:      cfg.ServiceName,
			ServiceVersion:   cfg.Version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			SamplingRatio:    cfg.OtelSamplingRatio,
		},
		Metrics: metrics.Config{
			Enabled:          cfg.OtelEnabled,
			ExporterEndpoint: cfg.OtelExporterEndpoint,
			ExporterProtocol: cfg.OtelExporterProtocol,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
		},
	}
}
