package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/partnerflow/internal/config"
)

const (
	keyPartnerMove     = "partner:move:%d:%d"
	defaultMoveLockTTL = 30 * time.Second
)

// Deletes the key only while it still carries the holder's token, so an
// expired holder cannot drop a lock taken over by another worker.
var releaseMoveLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var ErrMoveInProgress = errors.New("partner_move_in_progress")

// ReleaseFunc gives a partner lock back. It is safe to call more than once.
type ReleaseFunc func(context.Context) error

func noopRelease(context.Context) error { return nil }

// MoveLock serializes group moves of one partner across processes.
type MoveLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMoveLock returns nil when Redis is not configured.
func NewMoveLock(cfg config.Config, client *redis.Client) *MoveLock {
	if client == nil {
		return nil
	}
	return &MoveLock{client: client, ttl: moveLockTTL(cfg)}
}

// Acquire takes the partner lock. Without Redis it is a no-op and always
// succeeds. ErrMoveInProgress means another worker holds the lock.
func (m *MoveLock) Acquire(ctx context.Context, programID, partnerID int64) (ReleaseFunc, error) {
	if m == nil || m.client == nil {
		return noopRelease, nil
	}

	key := moveLockKey(programID, partnerID)
	holder := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, holder, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrMoveInProgress
	}

	released := false
	return func(ctx context.Context) error {
		if released {
			return nil
		}
		released = true
		return releaseMoveLock.Run(ctx, m.client, []string{key}, holder).Err()
	}, nil
}

func moveLockTTL(cfg config.Config) time.Duration {
	ttl := time.Duration(cfg.RateLimit.PartnerMoveLockSeconds) * time.Second
	if ttl <= 0 {
		return defaultMoveLockTTL
	}
	return ttl
}

func moveLockKey(programID, partnerID int64) string {
	return fmt.Sprintf(keyPartnerMove, programID, partnerID)
}
