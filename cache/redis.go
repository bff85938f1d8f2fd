package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"polls-backend/config"

	"github.com/redis/go-redis/v9"
)

var (
	redisClient *redis.Client
	clientMu    sync.RWMutex

	// jitterFactor spreads expirations so cached keys do not expire together
	jitterFactor = 0.2
)

// InitRedis connects to Redis. When Redis is disabled or unreachable the
// package stays in degraded mode: GetClient returns ErrRedisNotAvailable and
// callers fall back to their in-process paths.
func InitRedis(cfg config.RedisConfig) error {
	if cfg.Mock {
		log.Println("REDIS_MOCK set, running without Redis")
		return nil
	}

	log.Printf("Connecting to Redis at %s", cfg.Addr)
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		log.Printf("Redis unavailable, running without it: %v", err)
		return fmt.Errorf("%w: %v", ErrRedisNotAvailable, err)
	}

	clientMu.Lock()
	redisClient = client
	clientMu.Unlock()
	log.Println("Redis connected")
	return nil
}

// GetClient returns the shared Redis client
func GetClient() (*redis.Client, error) {
	clientMu.RLock()
	defer clientMu.RUnlock()
	if redisClient == nil {
		return nil, ErrRedisNotAvailable
	}
	return redisClient, nil
}

// Available reports whether a Redis connection was established
func Available() bool {
	_, err := GetClient()
	return err == nil
}

// Ping checks the live connection
func Ping(ctx context.Context) error {
	client, err := GetClient()
	if err != nil {
		return err
	}
	return client.Ping(ctx).Err()
}

// CloseRedis closes the shared client
func CloseRedis() {
	clientMu.Lock()
	defer clientMu.Unlock()
	if redisClient == nil {
		return
	}
	if err := redisClient.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		log.Printf("Error closing Redis: %v", err)
	}
	redisClient = nil
	log.Println("Redis connection closed")
}

// jitter returns ttl randomly stretched or shrunk by up to jitterFactor/2
func jitter(ttl time.Duration) time.Duration {
	return time.Duration(float64(ttl) * (1 + jitterFactor*(0.5-rand.Float64())))
}
