package routes

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"polls-backend/api"
	"polls-backend/cache"
	"polls-backend/config"
	"polls-backend/handlers"
	"polls-backend/middleware"
	"polls-backend/service"
	"polls-backend/templates"
	"polls-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Server wraps the HTTP server
type Server struct {
	*http.Server
}

// Dependencies are the collaborators the router dispatches to
type Dependencies struct {
	Config       *config.Config
	DB           *gorm.DB
	Polls        *service.PollService
	Accounts     *service.AccountService
	Hub          *websocket.Hub
	Queue        handlers.QueueStats // optional
	VoteLimiter  cache.RateLimiter
	LoginLimiter cache.RateLimiter
}

// SetupRouter builds the gin engine with every page and API route
func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	router := gin.Default()

	tmpl, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	origins := []string{"*"}
	if deps.Config != nil && len(deps.Config.CORSOrigins) > 0 {
		origins = deps.Config.CORSOrigins
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.Authenticate(deps.Accounts))

	voteStats := &middleware.RateLimitStats{}
	loginStats := &middleware.RateLimitStats{}

	pollHandler := handlers.NewPollHandler(deps.Polls)
	accountHandler := handlers.NewAccountHandler(deps.Accounts)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Queue, deps.Hub, map[string]*middleware.RateLimitStats{
		"vote":  voteStats,
		"login": loginStats,
	})
	wsHandler := websocket.NewHandler(deps.Hub, deps.Polls)

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/polls/")
	})
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/status", healthHandler.SystemStatus)

	polls := router.Group("/polls")
	{
		polls.GET("/", pollHandler.Index)
		polls.GET("/:id/", pollHandler.Detail)
		if deps.VoteLimiter != nil {
			polls.POST("/:id/vote/", middleware.RateLimit(deps.VoteLimiter, middleware.ByUser, voteStats), pollHandler.Vote)
		} else {
			polls.POST("/:id/vote/", pollHandler.Vote)
		}
		polls.GET("/:id/results/", pollHandler.Results)
		polls.GET("/:id/results/ws", wsHandler.ServeResults)
	}

	accounts := router.Group("/accounts")
	{
		accounts.GET("/login/", accountHandler.LoginForm)
		if deps.LoginLimiter != nil {
			accounts.POST("/login/", middleware.RateLimit(deps.LoginLimiter, middleware.ByClientIP, loginStats), accountHandler.Login)
		} else {
			accounts.POST("/login/", accountHandler.Login)
		}
		accounts.GET("/signup/", accountHandler.SignupForm)
		accounts.POST("/signup/", accountHandler.Signup)
		accounts.POST("/logout/", accountHandler.Logout)
	}

	api.NewPollController(deps.Polls).RegisterRoutes(router.Group("/api"))
	api.NewAdminController(deps.Polls).RegisterRoutes(router.Group("/admin/api"))

	return router, nil
}

// StartServer serves router on port in a background goroutine
func StartServer(router *gin.Engine, port string) *Server {
	if port == "" {
		port = "8090"
	}
	addr := ":" + port

	srv := &Server{
		&http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	return srv
}
