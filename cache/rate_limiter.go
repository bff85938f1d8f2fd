package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter decides whether one more request for key may pass
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// tokenBucketScript refills the bucket for the elapsed time and takes one
// token. Time is in milliseconds, rate in tokens per second.
var tokenBucketScript = redis.NewScript(`
local tokens_key = KEYS[1] .. ":tokens"
local timestamp_key = KEYS[1] .. ":ts"
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local tokens = tonumber(redis.call("get", tokens_key) or burst)
local last_update = tonumber(redis.call("get", timestamp_key) or now)

local elapsed = math.max(0, now - last_update)
local new_tokens = math.min(burst, tokens + elapsed * rate / 1000)

if new_tokens < 1 then
	return 0
end

new_tokens = new_tokens - 1
redis.call("set", tokens_key, new_tokens, "PX", ttl)
redis.call("set", timestamp_key, now, "PX", ttl)
return 1
`)

// TokenBucketRateLimiter is a Redis token bucket shared by all server instances
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	prefix      string
	rate        float64 // tokens per second
	burst       int
}

// NewTokenBucketRateLimiter creates a limiter refilling rate tokens per
// second up to burst
func NewTokenBucketRateLimiter(client RedisClient, prefix string, rate float64, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("rate_limit:%s", prefix),
		rate:        rate,
		burst:       burst,
	}
}

// Allow takes one token from the key's bucket
func (l *TokenBucketRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	// keep idle buckets around for twice the time a full refill takes
	ttl := int64(2 * float64(l.burst) / l.rate * 1000)
	if ttl < 2000 {
		ttl = 2000
	}

	now := time.Now().UnixMilli()
	result, err := tokenBucketScript.Run(ctx, l.redisClient, []string{l.prefix + ":" + key},
		now, l.rate, l.burst, ttl).Int64()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// SlidingWindowRateLimiter allows at most limit requests per key in any window
type SlidingWindowRateLimiter struct {
	redisClient RedisClient
	prefix      string
	windowSize  time.Duration
	limit       int
}

// NewSlidingWindowRateLimiter creates a sliding window limiter
func NewSlidingWindowRateLimiter(client RedisClient, prefix string, windowSize time.Duration, limit int) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		redisClient: client,
		prefix:      fmt.Sprintf("sliding_window:%s", prefix),
		windowSize:  windowSize,
		limit:       limit,
	}
}

// Allow records the request in the key's window and reports whether it fits
func (l *SlidingWindowRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	setKey := l.prefix + ":" + key
	now := time.Now().UnixMilli()
	windowStart := now - l.windowSize.Milliseconds()
	requestID := uuid.New().String()

	pipe := l.redisClient.Pipeline()
	pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(now), Member: requestID})
	pipe.ZRemRangeByScore(ctx, setKey, "0", strconv.FormatInt(windowStart, 10))
	card := pipe.ZCard(ctx, setKey)
	pipe.Expire(ctx, setKey, l.windowSize*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	if card.Val() > int64(l.limit) {
		l.redisClient.ZRem(ctx, setKey, requestID)
		return false, nil
	}
	return true, nil
}

// LocalRateLimiter keeps one x/time/rate limiter per key in process memory.
// Keys idle for longer than a full refill are dropped.
type LocalRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*localEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter creates an in-process limiter with the given rate per
// second and burst
func NewLocalRateLimiter(perSecond float64, burst int) *LocalRateLimiter {
	idle := time.Minute
	if perSecond > 0 {
		if refill := time.Duration(float64(burst) / perSecond * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &LocalRateLimiter{
		limiters: make(map[string]*localEntry),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  idle,
		now:      time.Now,
	}
}

// Allow never fails
func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	if l.lastSweep.IsZero() {
		l.lastSweep = now
	} else if now.Sub(l.lastSweep) > l.idleTTL {
		l.evictIdle(now)
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys
func (l *LocalRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// evictIdle must be called with mu held
func (l *LocalRateLimiter) evictIdle(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// FallbackRateLimiter asks the primary limiter and switches to the fallback
// whenever the primary errors, so a Redis outage never blocks requests
// outright.
type FallbackRateLimiter struct {
	primary  RateLimiter
	fallback RateLimiter
}

// NewFallbackRateLimiter combines a shared limiter with a local one
func NewFallbackRateLimiter(primary, fallback RateLimiter) *FallbackRateLimiter {
	return &FallbackRateLimiter{primary: primary, fallback: fallback}
}

// Allow checks primary first
func (l *FallbackRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.primary != nil {
		allowed, err := l.primary.Allow(ctx, key)
		if err == nil {
			return allowed, nil
		}
		log.Printf("Rate limiter error, using local limiter: %v", err)
	}
	return l.fallback.Allow(ctx, key)
}

// NewVoteRateLimiter returns the limiter for vote submissions: perMinute
// votes per user, shared through Redis when client is non-nil. It returns
// nil when perMinute is not positive, which disables vote rate limiting.
func NewVoteRateLimiter(client *redis.Client, perMinute int) RateLimiter {
	if perMinute <= 0 {
		log.Println("Vote rate limiting disabled")
		return nil
	}
	perSecond := float64(perMinute) / 60
	local := NewLocalRateLimiter(perSecond, perMinute)
	if client == nil {
		return local
	}
	return NewFallbackRateLimiter(NewTokenBucketRateLimiter(client, "vote", perSecond, perMinute), local)
}

// NewLoginRateLimiter returns the limiter for login attempts: attempts per
// client address per window.
func NewLoginRateLimiter(client *redis.Client, window time.Duration, attempts int) RateLimiter {
	local := NewLocalRateLimiter(float64(attempts)/window.Seconds(), attempts)
	if client == nil {
		return local
	}
	return NewFallbackRateLimiter(NewSlidingWindowRateLimiter(client, "login", window, attempts), local)
}
