package middleware

import (
	"log"
	"net/http"
	"strconv"
	"sync/atomic"

	"polls-backend/cache"

	"github.com/gin-gonic/gin"
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ByUser keys authenticated requests by user id and anonymous ones by address
func ByUser(c *gin.Context) string {
	if id := CurrentUserID(c); id != 0 {
		return "user:" + strconv.FormatUint(uint64(id), 10)
	}
	return "ip:" + c.ClientIP()
}

// ByClientIP keys requests by client address
func ByClientIP(c *gin.Context) string {
	return "ip:" + c.ClientIP()
}

// RateLimitStats counts decisions of one rate limit middleware
type RateLimitStats struct {
	total    atomic.Int64
	allowed  atomic.Int64
	rejected atomic.Int64
}

// Snapshot returns the current counters
func (s *RateLimitStats) Snapshot() map[string]int64 {
	return map[string]int64{
		"total":    s.total.Load(),
		"allowed":  s.allowed.Load(),
		"rejected": s.rejected.Load(),
	}
}

// RateLimit rejects requests over the limiter's budget with 429. Limiter
// errors let the request through.
func RateLimit(limiter cache.RateLimiter, key KeyFunc, stats *RateLimitStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stats != nil {
			stats.total.Add(1)
		}

		allowed, err := limiter.Allow(c.Request.Context(), key(c))
		if err != nil {
			log.Printf("Rate limiter failed, allowing request: %v", err)
			allowed = true
		}

		if !allowed {
			if stats != nil {
				stats.rejected.Add(1)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please slow down",
			})
			return
		}

		if stats != nil {
			stats.allowed.Add(1)
		}
		c.Next()
	}
}
