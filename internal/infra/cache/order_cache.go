package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campus-takeout/internal/domain"

	"github.com/go-redis/redis/v8"
)

// OrderCache is a read-through cache of order details keyed by order id.
type OrderCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, orderID uint64) (*domain.Order, error)
	Set(ctx context.Context, order *domain.Order) error
	Invalidate(ctx context.Context, orderID uint64) error
}

var (
	_ OrderCache = (*RedisOrderCache)(nil)
	_ OrderCache = NoopOrderCache{}
)

type RedisOrderCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisOrderCache(rdb *redis.Client, ttl time.Duration) *RedisOrderCache {
	return &RedisOrderCache{rdb: rdb, ttl: ttl}
}

func orderKey(orderID uint64) string {
	return fmt.Sprintf("order:detail:%d", orderID)
}

func (c *RedisOrderCache) Get(ctx context.Context, orderID uint64) (*domain.Order, error) {
	b, err := c.rdb.Get(ctx, orderKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		// a corrupt entry is treated as a miss and dropped
		c.rdb.Del(ctx, orderKey(orderID))
		return nil, nil
	}
	return &o, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, order *domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, orderKey(order.ID), data, c.ttl).Err()
}

func (c *RedisOrderCache) Invalidate(ctx context.Context, orderID uint64) error {
	return c.rdb.Del(ctx, orderKey(orderID)).Err()
}

// NoopOrderCache always misses.
type NoopOrderCache struct{}

func (NoopOrderCache) Get(context.Context, uint64) (*domain.Order, error) { return nil, nil }
func (NoopOrderCache) Set(context.Context, *domain.Order) error           { return nil }
func (NoopOrderCache) Invalidate(context.Context, uint64) error           { return nil }
