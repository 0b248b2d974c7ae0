package cache

import (
	"context"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

// Locker hands out short exclusive leases across instances.
type Locker interface {
	// TryLock reports whether this caller now holds key for ttl.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var _ Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	rdb   *redis.Client
	owner string
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	host, _ := os.Hostname()
	return &RedisLocker{rdb: rdb, owner: host}
}

// TryLock never releases early: the lease expires on its own.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, l.owner, ttl).Result()
}
