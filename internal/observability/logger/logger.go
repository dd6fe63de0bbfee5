package logger

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	// Debug disables sampling so every evaluator decision is visible.
	Debug bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process logger, installs it as the zap global and syncs it
// on shutdown.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	log, err := Build(cfg, zapcore.Lock(os.Stdout))
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}
	return log, nil
}

// Build assembles a logger writing to out.
func Build(cfg Config, out zapcore.WriteSyncer) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	raw := strings.TrimSpace(cfg.Level)
	if raw == "" {
		raw = "info"
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, out, level)
	if !cfg.Debug {
		core = zapcore.NewSamplerWithOptions(core,
			orDuration(cfg.SamplingWindow, time.Second),
			orInt(cfg.SamplingInitial, 100),
			orInt(cfg.SamplingThereafter, 100),
		)
	}

	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if cfg.IncludeCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "partnerflow"
	}
	return zap.New(core, opts...).With(
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	), nil
}

// FromContext returns the global logger with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds whichever of request id, program, actor, correlation id and
// trace ids are present on ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	var fields []zap.Field
	add := func(key, value string) {
		if value != "" {
			fields = append(fields, zap.String(key, value))
		}
	}
	add("request_id", obscontext.RequestIDFromContext(ctx))
	add("program_id", obscontext.ProgramIDFromContext(ctx))
	actorType, actorID := obscontext.ActorFromContext(ctx)
	add("actor_type", actorType)
	add("actor_id", actorID)
	add("correlation_id", correlation.FromContext(ctx))
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}

	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
