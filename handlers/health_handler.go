package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"polls-backend/cache"
	"polls-backend/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemInfo contains basic system metrics and information
type SystemInfo struct {
	Status           string                      `json:"status"`
	Version          string                      `json:"version"`
	Uptime           string                      `json:"uptime"`
	StartTime        time.Time                   `json:"start_time"`
	CurrentTime      time.Time                   `json:"current_time"`
	GoVersion        string                      `json:"go_version"`
	NumGoroutine     int                         `json:"num_goroutine"`
	NumCPU           int                         `json:"num_cpu"`
	DBStatus         string                      `json:"db_status"`
	RedisStatus      string                      `json:"redis_status"`
	Queue            map[string]interface{}      `json:"queue,omitempty"`
	WebSocketClients int                         `json:"websocket_clients"`
	RateLimits       map[string]map[string]int64 `json:"rate_limits,omitempty"`
}

var (
	startTime = time.Now()
	version   = "0.1.0"
)

// QueueStats reports the state of the vote event queue
type QueueStats interface {
	GetQueueStats() map[string]interface{}
}

// ClientCounter reports connected live results clients
type ClientCounter interface {
	TotalClients() int
}

// HealthHandler serves liveness and status endpoints
type HealthHandler struct {
	db         *gorm.DB
	queue      QueueStats
	clients    ClientCounter
	rateLimits map[string]*middleware.RateLimitStats
}

// NewHealthHandler creates the health handler. queue, clients and
// rateLimits may be nil.
func NewHealthHandler(db *gorm.DB, queue QueueStats, clients ClientCounter, rateLimits map[string]*middleware.RateLimitStats) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, clients: clients, rateLimits: rateLimits}
}

// HealthCheck is the liveness check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus reports uptime, runtime and backend state
func (h *HealthHandler) SystemStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		dbStatus = "error"
		status = "degraded"
	}

	redisStatus := "ok"
	switch {
	case !cache.Available():
		redisStatus = "disabled"
	case cache.Ping(ctx) != nil:
		redisStatus = "error"
	}

	info := SystemInfo{
		Status:       status,
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     dbStatus,
		RedisStatus:  redisStatus,
	}
	if h.queue != nil {
		info.Queue = h.queue.GetQueueStats()
	}
	if h.clients != nil {
		info.WebSocketClients = h.clients.TotalClients()
	}
	if len(h.rateLimits) > 0 {
		info.RateLimits = make(map[string]map[string]int64, len(h.rateLimits))
		for name, stats := range h.rateLimits {
			info.RateLimits[name] = stats.Snapshot()
		}
	}

	c.JSON(http.StatusOK, info)
}
