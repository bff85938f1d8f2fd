package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()

	assert.Equal(t, "8090", cfg.ServerPort)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, "memory", cfg.MQDriver)
	assert.False(t, cfg.EnforceVoteWindow)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.NotEmpty(t, cfg.JWTSecret, "development mode falls back to a local secret")
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ENFORCE_VOTE_WINDOW", "true")
	t.Setenv("VOTE_RATE_LIMIT", "not-a-number")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example ,")

	cfg := Load()

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.EnforceVoteWindow)
	assert.Equal(t, 30, cfg.VoteRateLimit)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
}
