package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exporterDialTimeout = 5 * time.Second

type Config struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Environment      string
	ExporterEndpoint string
	ExporterProtocol string
	SamplingRatio    float64
}

// NewProvider registers the global tracer provider and propagators. Spans are
// always recorded in-process so log lines carry trace ids; they are only
// exported when Enabled is set.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplingRatio)),
		sdktrace.WithSpanProcessor(correlationProcessor{}),
	}
	if cfg.Enabled {
		exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if lc != nil {
		lc.Append(fx.Hook{OnStop: tp.Shutdown})
	}
	if log != nil && cfg.Enabled {
		log.Info("otlp tracing enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Float64("sampling_ratio", cfg.SamplingRatio),
		)
	}
	return tp, nil
}

// sampler honours the caller's decision and samples new roots by ratio.
func sampler(ratio float64) sdktrace.Sampler {
	root := sdktrace.TraceIDRatioBased(ratio)
	switch {
	case ratio >= 1:
		root = sdktrace.AlwaysSample()
	case ratio <= 0:
		root = sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(root)
}

func newExporter(protocol, endpoint string) (*otlptrace.Exporter, error) {
	var client otlptrace.Client
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "http", "http/protobuf":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		client = otlptracehttp.NewClient(opts...)
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		client = otlptracegrpc.NewClient(opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}

	ctx, cancel := context.WithTimeout(context.Background(), exporterDialTimeout)
	defer cancel()
	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	return exporter, nil
}

// correlationProcessor stamps the correlation id onto every span started
// under it, so evaluator spans can be found from an API response.
type correlationProcessor struct{}

func (correlationProcessor) OnStart(ctx context.Context, s sdktrace.ReadWriteSpan) {
	if id := correlation.FromContext(ctx); id != "" {
		s.SetAttributes(attribute.String("correlation_id", id))
	}
}

func (correlationProcessor) OnEnd(sdktrace.ReadOnlySpan)      {}
func (correlationProcessor) Shutdown(context.Context) error   { return nil }
func (correlationProcessor) ForceFlush(context.Context) error { return nil }
