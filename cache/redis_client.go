package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of *redis.Client the cache package uses
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	Pipeline() redis.Pipeliner
	TxPipeline() redis.Pipeliner

	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd

	// Lua scripts
	redis.Scripter
}

var _ RedisClient = (*redis.Client)(nil)
