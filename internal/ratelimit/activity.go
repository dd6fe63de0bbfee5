package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/partnerflow/internal/config"
)

const keyActivityProgram = "activity:ingest:program:%s"

// ActivityLimiter throttles partner activity ingest per program.
type ActivityLimiter struct {
	bucket *TokenBucket
	limit  Limit
}

// NewActivityLimiter returns nil when rate limiting is disabled.
func NewActivityLimiter(cfg config.Config, client *redis.Client) (*ActivityLimiter, error) {
	rl := cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	if client == nil {
		return nil, errors.New("rate limit requires REDIS_ADDR")
	}
	limit := Limit{Rate: rl.ActivityProgramRate, Burst: rl.ActivityProgramBurst}
	if err := limit.validate(); err != nil {
		return nil, fmt.Errorf("activity program limit: %w", err)
	}
	return &ActivityLimiter{bucket: NewTokenBucket(client), limit: limit}, nil
}

func (l *ActivityLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowProgram spends one token from the program's ingest bucket. A disabled
// limiter allows everything.
func (l *ActivityLimiter) AllowProgram(ctx context.Context, programID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, activityKey(programID), l.limit, 1)
}

func activityKey(programID string) string {
	return fmt.Sprintf(keyActivityProgram, strings.TrimSpace(programID))
}
