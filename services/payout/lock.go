package payout

import (
	"context"
	"fmt"
	"time"

	"kinads-controlplane/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serialises payout cycles across workers.
type Locker interface {
	Acquire(ctx context.Context, date, owner string) (func(context.Context) error, error)
}

// CycleLock is a per-date redis SET NX lock.
type CycleLock struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCycleLock(rdb *redis.Client, ttl time.Duration) *CycleLock {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CycleLock{rdb: rdb, ttl: ttl}
}

// Acquire takes the lock for date. The returned release only deletes the key
// while owner still holds it.
func (l *CycleLock) Acquire(ctx context.Context, date, owner string) (func(context.Context) error, error) {
	key := rediskey.BuildPayoutCycleKey(date)

	ok, err := l.rdb.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCycleInProgress, date)
	}

	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{key}, owner).Err()
	}, nil
}
