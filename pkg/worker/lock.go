package worker

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RunLock serializes automation runs across replicas. Losing the lock is
// not an error: guarded updates already make overlapping runs safe, the
// lock only avoids duplicate scans.
type RunLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRunLock(rdb *redis.Client) *RunLock {
	return &RunLock{
		rdb: rdb,
		key: "lock:order_automation_run",
		ttl: 2 * time.Minute,
	}
}

// TryAcquire returns true if this process now holds the lock. Redis errors
// degrade to "acquired" so a cache outage cannot halt automation.
func (l *RunLock) TryAcquire(ctx context.Context) bool {
	ok, err := l.rdb.SetNX(ctx, l.key, 1, l.ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

func (l *RunLock) Release(ctx context.Context) {
	l.rdb.Del(ctx, l.key)
}
