package middleware

import (
	"context"
	"net/http"
	"strings"

	"polls-backend/models"

	"github.com/gin-gonic/gin"
)

// SessionCookie holds the session token
const SessionCookie = "polls_session"

const currentUserKey = "current_user"

// Authenticator resolves a session token to a user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// Authenticate loads the user of the session cookie or bearer token into the
// context. It never aborts; an invalid cookie is cleared and the request
// continues anonymously.
func Authenticate(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, fromCookie := sessionToken(c)
		if token == "" {
			c.Next()
			return
		}

		user, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			if fromCookie {
				ClearSessionCookie(c)
			}
			c.Next()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

func sessionToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), false
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// CurrentUser returns the authenticated user or nil
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(currentUserKey); ok {
		if user, ok := v.(*models.User); ok {
			return user
		}
	}
	return nil
}

// CurrentUserID returns the authenticated user's id, 0 when anonymous
func CurrentUserID(c *gin.Context) uint {
	if user := CurrentUser(c); user != nil {
		return user.ID
	}
	return 0
}

// RequireStaff rejects anonymous (401) and non-staff (403) requests
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !user.IsStaff {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
			return
		}
		c.Next()
	}
}

// SetSessionCookie stores the session token in an HttpOnly cookie
func SetSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, maxAge, "/", "", c.Request.TLS != nil, true)
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", c.Request.TLS != nil, true)
}
