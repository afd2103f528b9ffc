package ratelimit

import (
	"context"
	"time"

	"github.com/jcmexdev/storefront-integrity/internal/pkg/cache"
)

// RedisCounter keeps one expiring key per identifier window and one expiring
// flag per blocked identifier.
type RedisCounter struct {
	cache cache.Cache
}

var _ Counter = (*RedisCounter)(nil)

func NewRedisCounter(c cache.Cache) *RedisCounter {
	return &RedisCounter{cache: c}
}

func (r *RedisCounter) Hit(ctx context.Context, key Key, window time.Duration, now time.Time) (int, time.Time, error) {
	count, ttl, err := r.cache.IncrWindow(ctx, r.cache.GenerateKey("hits", key.String()), window)
	if err != nil {
		return 0, time.Time{}, err
	}
	return int(count), now.Add(ttl), nil
}

func (r *RedisCounter) Block(ctx context.Context, key Key, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.cache.Set(ctx, r.cache.GenerateKey("blocked", key.String()), until.Unix(), ttl)
}

// Blocked relies on the flag's TTL; now is ignored.
func (r *RedisCounter) Blocked(ctx context.Context, key Key, _ time.Time) (bool, error) {
	return r.cache.Exists(ctx, r.cache.GenerateKey("blocked", key.String()))
}
