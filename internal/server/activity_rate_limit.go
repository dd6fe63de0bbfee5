package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/partnerflow/internal/observability/logger"
	"github.com/smallbiznis/partnerflow/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonProgramRate = "program-rate"

// ActivityRateLimit throttles activity ingestion per program. It fails closed
// with 503 when the limiter backend cannot be reached.
func (s *Server) ActivityRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.activityLimiter == nil || !s.activityLimiter.Enabled() {
			c.Next()
			return
		}

		programID, err := programIDFromRequest(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		route := c.FullPath()
		result, err := s.activityLimiter.AllowProgram(ctx, programID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("activity rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		writeRateLimitHeaders(c, result)
		if result.Allowed {
			s.obsMetrics.RecordRateLimitAllowed(ctx, programID.String(), route)
			c.Next()
			return
		}

		logger.FromContext(ctx).Warn("activity rate limit exceeded",
			zap.String("reason", rateLimitReasonProgramRate),
			zap.String("endpoint", route),
		)
		s.obsMetrics.RecordRateLimitDenied(ctx, programID.String(), route, rateLimitReasonProgramRate)
		c.Header("X-Rate-Limited-Reason", rateLimitReasonProgramRate)
		AbortWithError(c, ErrRateLimited)
	}
}

func writeRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.ResetTime.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
	}
	if !result.Allowed {
		// whole seconds, never zero, so clients always back off
		retryAfter := max(int(math.Ceil(result.RetryAfter.Seconds())), 1)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
}
