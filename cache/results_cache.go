package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultResultsTTL is the base lifetime of cached poll results
const DefaultResultsTTL = time.Hour

// ResultsCache stores rendered poll results as JSON in Redis. A cache without
// a client misses on every read and ignores writes.
type ResultsCache struct {
	redisClient RedisClient
	ttl         time.Duration
}

// NewResultsCache creates a results cache; client may be nil
func NewResultsCache(client *redis.Client, ttl time.Duration) *ResultsCache {
	c := &ResultsCache{ttl: ttl}
	if client != nil {
		c.redisClient = client
	}
	return c
}

// ResultsKey is the Redis key holding a question's results
func ResultsKey(questionID uint) string {
	return fmt.Sprintf("poll:%d:results", questionID)
}

// GenerationKey is the Redis counter bumped on every invalidation of a
// question's results
func GenerationKey(questionID uint) string {
	return fmt.Sprintf("poll:%d:results:gen", questionID)
}

// setIfGenerationScript writes the results only while the generation counter
// still holds the value the caller read before computing them.
var setIfGenerationScript = redis.NewScript(`
local current = redis.call("get", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("set", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`)

// Get decodes the cached results into dest and reports whether they were found
func (c *ResultsCache) Get(ctx context.Context, questionID uint, dest interface{}) (bool, error) {
	if c == nil || c.redisClient == nil {
		return false, nil
	}

	data, err := c.redisClient.Get(ctx, ResultsKey(questionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("Discarding unreadable cached results for question %d: %v", questionID, err)
		return false, nil
	}
	return true, nil
}

// Generation returns the question's invalidation counter, 0 if it was never
// invalidated
func (c *ResultsCache) Generation(ctx context.Context, questionID uint) (int64, error) {
	if c == nil || c.redisClient == nil {
		return 0, nil
	}

	gen, err := c.redisClient.Get(ctx, GenerationKey(questionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfGeneration caches value with a jittered TTL unless the question was
// invalidated after generation was read. It reports whether value was stored.
func (c *ResultsCache) SetIfGeneration(ctx context.Context, questionID uint, generation int64, value interface{}) (bool, error) {
	if c == nil || c.redisClient == nil {
		return false, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("encode results: %w", err)
	}

	stored, err := setIfGenerationScript.Run(ctx, c.redisClient,
		[]string{GenerationKey(questionID), ResultsKey(questionID)},
		strconv.FormatInt(generation, 10), data, jitter(c.ttl).Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate bumps the question's generation and drops its cached results
func (c *ResultsCache) Invalidate(ctx context.Context, questionID uint) error {
	if c == nil || c.redisClient == nil {
		return nil
	}

	pipe := c.redisClient.TxPipeline()
	pipe.Incr(ctx, GenerationKey(questionID))
	pipe.Del(ctx, ResultsKey(questionID))
	_, err := pipe.Exec(ctx)
	return err
}
