package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache interface {
	Get(ctx context.Context, currency string) (Rates, bool, error)
	Set(ctx context.Context, currency string, rates Rates, ttl time.Duration) error
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(ctx context.Context, currency string) (Rates, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(ctx context.Context, currency string, rates Rates, ttl time.Duration) error {
	return nil
}

type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// ConnectRedis opens a client and checks it with PING.
func ConnectRedis(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func cacheKey(currency string) string {
	return "rates:" + currency
}

func (c *RedisCache) Get(ctx context.Context, currency string) (Rates, bool, error) {
	data, err := c.rdb.Get(ctx, cacheKey(currency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rates Rates
	if err := json.Unmarshal(data, &rates); err != nil {
		return nil, false, fmt.Errorf("decode cached rates: %w", err)
	}
	return rates, true, nil
}

func (c *RedisCache) Set(ctx context.Context, currency string, rates Rates, ttl time.Duration) error {
	data, err := json.Marshal(rates)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(currency), data, ttl).Err()
}
