package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DBConfig holds database connection settings
type DBConfig struct {
	Driver     string // mysql, postgres or sqlite
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SQLitePath string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Mock     bool // skip Redis entirely
}

// Config is the full server configuration, read once at startup
type Config struct {
	Environment string
	ServerPort  string

	DB    DBConfig
	Redis RedisConfig

	MQDriver           string // memory, redis or rocketmq
	RocketMQNameServer string

	JWTSecret  string
	SessionTTL time.Duration

	// EnforceVoteWindow makes vote submissions re-check the voting window.
	// Off by default: only the detail page gates on it.
	EnforceVoteWindow bool
	VoteRateLimit     int // votes per minute per user, 0 or less disables the limit

	AdminUsername string
	AdminPassword string

	CORSOrigins []string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present in the working directory.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "8090"),
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "mysql"),
			Host:       getEnv("DB_HOST", "mysql"),
			Port:       getEnv("DB_PORT", "3306"),
			User:       getEnv("DB_USER", "polluser"),
			Password:   getEnv("DB_PASSWORD", "pollpassword"),
			Name:       getEnv("DB_NAME", "pollsdb"),
			SQLitePath: getEnv("SQLITE_PATH", "polls.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Mock:     getEnvBool("REDIS_MOCK", false),
		},
		MQDriver:           getEnv("MQ_DRIVER", "memory"),
		RocketMQNameServer: getEnv("ROCKETMQ_NAMESERVER", "localhost:9876"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		SessionTTL:         getEnvDuration("SESSION_TTL", 24*time.Hour),
		EnforceVoteWindow:  getEnvBool("ENFORCE_VOTE_WINDOW", false),
		VoteRateLimit:      getEnvInt("VOTE_RATE_LIMIT", 30),
		AdminUsername:      getEnv("ADMIN_USERNAME", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "*")),
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		log.Println("Warning: JWT_SECRET not set, using an insecure development secret")
		cfg.JWTSecret = "development-only-secret"
	}

	return cfg
}

// IsDevelopment reports whether the server runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnv returns the environment value or the default
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid integer for %s=%q, using %d", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: invalid boolean for %s=%q, using %v", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid duration for %s=%q, using %s", key, raw, defaultValue)
		return defaultValue
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
