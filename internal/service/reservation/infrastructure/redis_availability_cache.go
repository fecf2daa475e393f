package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"poscore/internal/pkg/redis"
)

const availabilityKeyPrefix = "availability:"

// RedisAvailabilityCache 缓存可用量的计算结果。
// 只做读加速：任何写路径都会主动失效，短 TTL 兜底
type RedisAvailabilityCache struct {
	client *redis.Client
}

func NewRedisAvailabilityCache(client *redis.Client) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{client: client}
}

func availabilityKey(articleID string) string {
	return fmt.Sprintf("%s{%s}", availabilityKeyPrefix, articleID)
}

// Get 返回 (值, 是否命中, 错误)
func (c *RedisAvailabilityCache) Get(ctx context.Context, articleID string) (int, bool, error) {
	val, err := c.client.GetClient().Get(ctx, availabilityKey(articleID)).Result()
	if err == goredis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *RedisAvailabilityCache) Set(ctx context.Context, articleID string, available int, ttl time.Duration) error {
	return c.client.GetClient().Set(ctx, availabilityKey(articleID), available, ttl).Err()
}

func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, articleID string) error {
	return c.client.GetClient().Del(ctx, availabilityKey(articleID)).Err()
}
