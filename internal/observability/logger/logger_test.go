package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	"github.com/smallbiznis/partnerflow/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithProgramID(ctx, "77")
	ctx = obscontext.WithActor(ctx, "user", "u-1")
	ctx = correlation.WithID(ctx, "01J0MOVE")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "77", fields["program_id"])
	assert.Equal(t, "user", fields["actor_type"])
	assert.Equal(t, "u-1", fields["actor_id"])
	assert.Equal(t, "01J0MOVE", fields["correlation_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutFieldsKeepsBase(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithContext(context.Background(), base))
}

func TestBuildWritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := Build(Config{Level: "debug", Version: "1.0.0", Debug: true}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	log.Debug("evaluated", zap.String("outcome", "moved"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "partnerflow", line["service"])
	assert.Equal(t, "1.0.0", line["version"])
	assert.Equal(t, "moved", line["outcome"])
	assert.Equal(t, "debug", line["level"])

	_, err = Build(Config{Level: "loud"}, zapcore.AddSync(&buf))
	assert.Error(t, err)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from partners"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH moved AS (SELECT 1) UPDATE partners SET group_id = 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestGinMiddlewareEchoesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestRequestLevel(t *testing.T) {
	activity := "/api/programs/:program_id/partners/:id/activity"
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/metrics", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel(activity, http.StatusInternalServerError, "internal_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel(activity, http.StatusTooManyRequests, "rate_limited"))
	assert.Equal(t, zapcore.DebugLevel, requestLevel(activity, http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/programs", http.StatusBadRequest, "validation_error"))
}
