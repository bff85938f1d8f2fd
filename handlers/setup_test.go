package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"polls-backend/auth"
	"polls-backend/database"
	"polls-backend/middleware"
	"polls-backend/models"
	"polls-backend/repository"
	"polls-backend/service"
	"polls-backend/templates"
	"polls-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	polls    *service.PollService
	accounts *service.AccountService
	tokens   *auth.TokenManager
}

// SetupTestEnvironment wires the page handlers on an in-memory database
func SetupTestEnvironment(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	tokens, err := auth.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	polls := service.NewPollService(repository.NewPollRepository(db), service.Options{
		Now: func() time.Time { return testNow },
	})
	accounts := service.NewAccountService(repository.NewUserRepository(db), tokens)

	tmpl, err := templates.Load()
	require.NoError(t, err)

	router := gin.Default()
	router.SetHTMLTemplate(tmpl)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.Authenticate(accounts))

	pollHandler := NewPollHandler(polls)
	router.GET("/polls/", pollHandler.Index)
	router.GET("/polls/:id/", pollHandler.Detail)
	router.POST("/polls/:id/vote/", pollHandler.Vote)
	router.GET("/polls/:id/results/", pollHandler.Results)

	accountHandler := NewAccountHandler(accounts)
	router.GET("/accounts/login/", accountHandler.LoginForm)
	router.POST("/accounts/login/", accountHandler.Login)
	router.GET("/accounts/signup/", accountHandler.SignupForm)
	router.POST("/accounts/signup/", accountHandler.Signup)
	router.POST("/accounts/logout/", accountHandler.Logout)

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	healthHandler := NewHealthHandler(db, nil, hub, map[string]*middleware.RateLimitStats{
		"vote": {},
	})
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/status", healthHandler.SystemStatus)

	return &testEnv{router: router, db: db, polls: polls, accounts: accounts, tokens: tokens}
}

// createQuestion stores a question published days away from testNow
func createQuestion(t *testing.T, db *gorm.DB, text string, days float64, choices ...string) *models.Question {
	t.Helper()
	q := &models.Question{
		QuestionText: text,
		PubDate:      testNow.Add(time.Duration(days * float64(24*time.Hour))),
	}
	for _, c := range choices {
		q.Choices = append(q.Choices, models.Choice{ChoiceText: c})
	}
	require.NoError(t, db.Create(q).Error)
	return q
}

// createUser signs a user up through the account service
func (e *testEnv) createUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	u, err := e.accounts.Signup(t.Context(), username, password)
	require.NoError(t, err)
	return u
}

func (e *testEnv) sessionCookie(t *testing.T, u *models.User) *http.Cookie {
	t.Helper()
	token, err := e.tokens.Generate(u.ID)
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.SessionCookie, Value: token}
}

// do serves the request, attaching cookies
func (e *testEnv) do(req *http.Request, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	return e.do(req, cookies...)
}

func (e *testEnv) postForm(path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req, cookies...)
}

// responseCookie returns the named cookie set by the response, or nil
func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// flashMessage decodes the flash notice set by the response
func flashMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	c := responseCookie(w, middleware.FlashCookie)
	require.NotNil(t, c, "no flash cookie set")
	msg, err := url.QueryUnescape(c.Value)
	require.NoError(t, err)
	return msg
}
