package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// sweepLockTTL bounds how long a crashed sweep can hold its lock.
const sweepLockTTL = 15 * time.Minute

// newRedisClient creates the dedicated Redis client used for sweep advisory
// locks. Separate from the Asynq internal connection.
func newRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// acquireSweepLock takes a best-effort SETNX lock for the named sweep. When
// redis is unavailable the sweep proceeds without the lock; the state machine
// transitions are conditional updates, so a duplicate run is wasteful but not
// incorrect.
func acquireSweepLock(ctx context.Context, rdb *redis.Client, name string) (acquired bool, release func()) {
	key := "afterwords:sweep-lock:" + name

	ok, err := rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), sweepLockTTL).Result()
	if err != nil {
		return true, func() {}
	}
	if !ok {
		return false, func() {}
	}

	return true, func() {
		rdb.Del(context.WithoutCancel(ctx), key)
	}
}
