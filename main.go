package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"polls-backend/auth"
	"polls-backend/cache"
	"polls-backend/config"
	"polls-backend/database"
	"polls-backend/handlers"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/routes"
	"polls-backend/service"
	"polls-backend/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := database.InitDB(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if err := cache.InitRedis(cfg.Redis); err != nil {
		log.Printf("Warning: Redis unavailable, running without cache and shared locks: %v", err)
	}
	var redisClient *redis.Client
	if client, err := cache.GetClient(); err == nil {
		redisClient = client
	}

	mqAdapter := mq.NewMQAdapter(mq.Options{
		Driver:      cfg.MQDriver,
		RedisClient: redisClient,
		NameServers: strings.Split(cfg.RocketMQNameServer, ","),
	})
	if err := mqAdapter.Initialize(); err != nil {
		log.Fatalf("Failed to initialize message queue: %v", err)
	}

	opts := service.Options{
		Results:           cache.NewResultsCache(redisClient, cache.DefaultResultsTTL),
		Events:            mqAdapter,
		EnforceVoteWindow: cfg.EnforceVoteWindow,
	}
	if redisClient != nil {
		opts.Locker = cache.NewLockService(redisClient)
	}
	polls := service.NewPollService(repository.NewPollRepository(database.DB), opts)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		log.Fatalf("Failed to configure sessions: %v", err)
	}
	accounts := service.NewAccountService(repository.NewUserRepository(database.DB), tokens)

	hub := websocket.NewHub()
	go hub.Run()

	if err := mqAdapter.RegisterHandler(handlers.NewVoteEventHandler(polls, hub)); err != nil {
		log.Printf("Warning: vote event consumer not started: %v", err)
	}

	router, err := routes.SetupRouter(routes.Dependencies{
		Config:       cfg,
		DB:           database.DB,
		Polls:        polls,
		Accounts:     accounts,
		Hub:          hub,
		Queue:        mqAdapter,
		VoteLimiter:  cache.NewVoteRateLimiter(redisClient, cfg.VoteRateLimit),
		LoginLimiter: cache.NewLoginRateLimiter(redisClient, time.Minute, 10),
	})
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	srv := routes.StartServer(router, cfg.ServerPort)
	log.Printf("Message queue status: %v", mqAdapter.GetQueueStats())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shut down: %v", err)
	}

	hub.Stop()
	mqAdapter.Close()
	cache.CloseRedis()
	database.CloseDB()

	log.Println("Server exited")
}
