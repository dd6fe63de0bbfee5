package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestGinMiddlewareNamesSpanAfterRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/api/programs/:program_id/partners/:id/evaluate", func(c *gin.Context) {
		c.Status(http.StatusServiceUnavailable)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/programs/7/partners/9/evaluate", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "POST /api/programs/:program_id/partners/:id/evaluate", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "7", attrs["program_id"].AsString())
	assert.Equal(t, "9", attrs["partner_id"].AsString())
	assert.Equal(t, int64(http.StatusServiceUnavailable), attrs["http.status_code"].AsInt64())
}

func TestGinMiddlewareGroupParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/api/programs/:program_id/groups/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/programs/7/groups/3", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var groupID string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "group_id" {
			groupID = kv.Value.AsString()
		}
	}
	assert.Equal(t, "3", groupID)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
}
