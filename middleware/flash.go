package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FlashCookie carries a one-shot notice across a redirect. gin query-escapes
// cookie values, so the notice is stored as plain text.
const FlashCookie = "polls_flash"

// SetFlash stores a notice to show on the next rendered page
func SetFlash(c *gin.Context, message string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(FlashCookie, message, 60, "/", "", c.Request.TLS != nil, true)
}

// PopFlash returns the pending notices and clears them
func PopFlash(c *gin.Context) []string {
	message, err := c.Cookie(FlashCookie)
	if err != nil || message == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(FlashCookie, "", -1, "/", "", c.Request.TLS != nil, true)
	return []string{message}
}
