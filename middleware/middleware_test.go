package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"polls-backend/cache"
	"polls-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator map[string]*models.User

func (f fakeAuthenticator) Authenticate(_ context.Context, token string) (*models.User, error) {
	if u, ok := f[token]; ok {
		return u, nil
	}
	return nil, errors.New("invalid token")
}

func newAuthRouter() *gin.Engine {
	users := fakeAuthenticator{
		"staff-token": {ID: 1, Username: "admin", IsStaff: true},
		"user-token":  {ID: 2, Username: "user"},
	}
	r := gin.New()
	r.Use(Authenticate(users))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, "%d", CurrentUserID(c))
	})
	r.GET("/admin", RequireStaff(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		wantID string
	}{
		{"anonymous", func(*http.Request) {}, "0"},
		{"cookie", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "user-token"})
		}, "2"},
		{"bearer", func(req *http.Request) {
			req.Header.Set("Authorization", "Bearer staff-token")
		}, "1"},
		{"bad cookie", func(req *http.Request) {
			req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})
		}, "0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.wantID, w.Body.String())
		})
	}
}

func TestAuthenticate_ClearsBadCookie(t *testing.T) {
	r := newAuthRouter()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "forged"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	cleared := false
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestRequireStaff(t *testing.T) {
	r := newAuthRouter()

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"regular user", "user-token", http.StatusForbidden},
		{"staff", "staff-token", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestFlash(t *testing.T) {
	r := gin.New()
	r.GET("/set", func(c *gin.Context) {
		SetFlash(c, "This poll has ended.")
		c.Redirect(http.StatusFound, "/show")
	})
	r.GET("/show", func(c *gin.Context) {
		c.JSON(http.StatusOK, PopFlash(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/set", nil))
	require.Equal(t, http.StatusFound, w.Code)

	var flash *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == FlashCookie {
			flash = c
		}
	}
	require.NotNil(t, flash)

	req := httptest.NewRequest(http.MethodGet, "/show", nil)
	req.AddCookie(flash)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `["This poll has ended."]`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/show", nil))
	assert.Equal(t, "null", w.Body.String())
}

func TestRateLimit(t *testing.T) {
	stats := &RateLimitStats{}
	r := gin.New()
	r.POST("/vote", RateLimit(cache.NewLocalRateLimiter(0.001, 2), ByClientIP, stats), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/vote", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, map[string]int64{"total": 3, "allowed": 2, "rejected": 1}, stats.Snapshot())
}
