package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/partnerflow/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const HeaderRequestID = "X-Request-Id"

// Probe and scrape routes that only log at debug.
var quietRoutes = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps the handler error to (type, code) log fields.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware stamps the request id on the context and writes one
// http_request line per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFrom(c)
		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = obscontext.WithClient(ctx, c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if partnerID := c.GetString("partner_id"); partnerID != "" {
			fields = append(fields, zap.String("partner_id", partnerID))
		}

		var errorType string
		if last := c.Errors.Last(); last != nil {
			var errorCode string
			if cfg.ErrorClassifier != nil {
				errorType, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", errorCode))
			if cfg.Debug {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status, errorType), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func requestIDFrom(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(HeaderRequestID)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.GetString("request_id")); id != "" {
		return id
	}
	return uuid.NewString()
}

// requestLevel keeps high-volume activity ingest rejections out of info logs.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	if _, ok := quietRoutes[route]; ok {
		return zapcore.DebugLevel
	}
	activity := strings.HasSuffix(route, "/partners/:id/activity")
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case activity && status == http.StatusTooManyRequests:
		return zapcore.WarnLevel
	case activity && errorType == "validation_error":
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
