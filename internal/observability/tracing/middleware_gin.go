package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Path params copied onto the server span when the route has them.
var spanParams = map[string]attribute.Key{
	"program_id": "program_id",
	"id":         "partner_id",
}

// GinMiddleware opens a server span per request, named after the matched route.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("partnerflow/http")
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}

		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		attrs := []attribute.KeyValue{
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", route),
		}
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			attrs = append(attrs, attribute.String("request_id", requestID))
			ctx = withBaggage(ctx, "request_id", requestID)
		}
		for param, key := range spanParams {
			if value := c.Param(param); value != "" {
				if key == "partner_id" && !strings.Contains(route, "/partners/:id") {
					key = "group_id"
				}
				attrs = append(attrs, attribute.String(string(key), value))
			}
		}
		span.SetAttributes(SafeAttributes(attrs...)...)

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(SafeAttributes(
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)
		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			if err := SafeError(last.Err); err != nil {
				span.RecordError(err)
			}
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func withBaggage(ctx context.Context, key, value string) context.Context {
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
