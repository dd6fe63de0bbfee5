package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(DefaultGormLoggerConfig(zap.New(core)))
	query := func() (string, int64) { return "SELECT * FROM partners WHERE email = ?", 1 }

	l.Trace(context.Background(), time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len(), "fast queries are quiet at warn level")

	l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "SELECT", entry.ContextMap()["operation"])
	assert.Equal(t, true, entry.ContextMap()["slow"])

	l.Trace(context.Background(), time.Now(), query, errors.New("deadlock detected"))
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[1].Level)

	l.Trace(context.Background(), time.Now(), query, context.Canceled)
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[2].Level)
}

func TestGormLoggerModes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(DefaultGormLoggerConfig(zap.New(core)))

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), func() (string, int64) { return "DELETE FROM partners", 0 }, errors.New("boom"))
	silent.Warn(context.Background(), "ignored")
	assert.Equal(t, 0, logs.Len())

	verbose := l.LogMode(gormlogger.Info)
	verbose.Trace(context.Background(), time.Now(), func() (string, int64) { return "UPDATE partners SET group_id = ?", 3 }, nil)
	verbose.Info(context.Background(), "migrating", "partners")
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Equal(t, int64(3), logs.All()[0].ContextMap()["rows_affected"])
	assert.Equal(t, "migrating", logs.All()[1].Message)

	sql, params := l.ParamsFilter(context.Background(), "SELECT ?", "secret@example.com")
	assert.Equal(t, "SELECT ?", sql)
	assert.Nil(t, params)
}
