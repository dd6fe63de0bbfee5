package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the GORM adapter.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
	// Base defaults to the global zap logger.
	Base *zap.Logger
}

// DefaultGormLoggerConfig logs failed and slow statements only. Row locks
// taken by the evaluator make anything slower than 250ms worth a look.
func DefaultGormLoggerConfig(base *zap.Logger) GormLoggerConfig {
	return GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 250 * time.Millisecond,
		Base:          base,
	}
}

// GormLogger routes GORM output through zap with request-scoped fields.
type GormLogger struct {
	cfg GormLoggerConfig
}

func NewGormLogger(cfg GormLoggerConfig) *GormLogger {
	return &GormLogger{cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zap.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zap.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zap.ErrorLevel, msg, data)
}

// Trace reports a finished statement. Missing rows and cancelled requests are
// expected outcomes and never logged as errors.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	slow := l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold

	switch {
	case err != nil && errors.Is(err, gormlogger.ErrRecordNotFound):
		if l.cfg.Level >= gormlogger.Info {
			l.query(ctx, zap.DebugLevel, fc, elapsed, slow, err)
		}
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		if l.cfg.Level >= gormlogger.Warn {
			l.query(ctx, zap.WarnLevel, fc, elapsed, slow, err)
		}
	case err != nil:
		if l.cfg.Level >= gormlogger.Error {
			l.query(ctx, zap.ErrorLevel, fc, elapsed, slow, err)
		}
	case slow && l.cfg.Level >= gormlogger.Warn:
		l.query(ctx, zap.WarnLevel, fc, elapsed, slow, nil)
	case l.cfg.Level >= gormlogger.Info:
		l.query(ctx, zap.DebugLevel, fc, elapsed, slow, nil)
	}
}

// ParamsFilter drops bound values so partner emails never reach the logs.
func (l *GormLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *GormLogger) base(ctx context.Context) *zap.Logger {
	base := l.cfg.Base
	if base == nil {
		base = zap.L()
	}
	return WithContext(ctx, base).With(zap.String("component", "gorm"))
}

func (l *GormLogger) message(ctx context.Context, threshold gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < threshold {
		return
	}
	var fields []zap.Field
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := l.base(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *GormLogger) query(ctx context.Context, level zapcore.Level, fc func() (string, int64), elapsed time.Duration, slow bool, err error) {
	sql, rows := fc()
	fields := []zap.Field{
		zap.String("operation", operationFromSQL(sql)),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if slow {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ce := l.base(ctx).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

// operationFromSQL returns the statement verb, skipping a leading CTE.
func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		switch verb := strings.Trim(token, "();"); verb {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return verb
		}
	}
	return "UNKNOWN"
}

var _ gormlogger.Interface = (*GormLogger)(nil)
