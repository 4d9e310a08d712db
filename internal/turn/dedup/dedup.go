// Package dedup provides a cross-process single-flight lock over
// (game, idempotency key), so concurrent duplicate turn requests collapse to
// one model invocation.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mirelark/storyloom/internal/platform/id"
)

const keyPrefix = "storyloom:turnlock:"

// releaseScript deletes the lock only when the caller still holds it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// Locker is a Redis-backed turn lock. The TTL bounds how long a crashed
// holder can block the key.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker creates a locker. A non-positive ttl defaults to 2 minutes.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// TryAcquire attempts to take the lock for (game, key). It returns a release
// function on success and nil when another holder owns the key. Release is
// best-effort: an expired lock is already gone and that is fine.
func (l *Locker) TryAcquire(ctx context.Context, gameID, key string) (func(), error) {
	token, err := id.NewID()
	if err != nil {
		return nil, fmt.Errorf("lock token: %w", err)
	}
	lockKey := keyPrefix + gameID + ":" + key

	acquired, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", lockKey, err)
	}
	if !acquired {
		return nil, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}
	return release, nil
}
